package server

import (
	"fmt"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

func snowflakeFromString(raw string) (snowflake.ID, error) {
	return snowflake.ParseString(raw)
}

// dateParam reads a YYYY-MM-DD query parameter, falling back to a default
// when absent.
func dateParam(c *gin.Context, name string, fallback time.Time) (time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return parsed.UTC(), nil
}

func dateField(raw string) (time.Time, error) {
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date: %q", raw)
	}
	return parsed.UTC(), nil
}

func timeNow() time.Time {
	return time.Now().UTC()
}

func limitParam(c *gin.Context) int {
	raw := c.Query("limit")
	if raw == "" {
		return 0
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return limit
}
