package clickhouse

import (
	"context"
	"testing"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/stretchr/testify/assert"
)

func TestOptionsNative(t *testing.T) {
	o := options(Config{
		Host:             "ch.local",
		Database:         "aerotrend",
		User:             "writer",
		Password:         "p@ss",
		DialTimeout:      2 * time.Second,
		MaxExecutionTime: 30 * time.Second,
		AsyncInsert:      true,
		WaitForAsync:     true,
	})

	assert.Equal(t, ch.Native, o.Protocol)
	assert.Equal(t, []string{"ch.local:9000"}, o.Addr)
	assert.Equal(t, ch.Auth{Database: "aerotrend", Username: "writer", Password: "p@ss"}, o.Auth)
	assert.Equal(t, 2*time.Second, o.DialTimeout)
	assert.Equal(t, 10*time.Second, o.ReadTimeout)
	assert.Equal(t, 30, o.Settings["max_execution_time"])
	assert.Equal(t, 1, o.Settings["async_insert"])
	assert.Equal(t, 1, o.Settings["wait_for_async_insert"])
}

func TestOptionsHTTPDefaults(t *testing.T) {
	o := options(Config{Host: "h", HTTP: true})
	assert.Equal(t, ch.HTTP, o.Protocol)
	assert.Equal(t, []string{"h:8123"}, o.Addr)
	assert.Equal(t, "default", o.Auth.Database)
	assert.NotContains(t, o.Settings, "async_insert")
	assert.NotContains(t, o.Settings, "max_execution_time")
}

func TestOpenRequiresHost(t *testing.T) {
	_, err := Open(context.Background(), Config{})
	assert.Error(t, err)
}

func TestCloseNilClient(t *testing.T) {
	var c *Client
	assert.NoError(t, c.Close())
}
