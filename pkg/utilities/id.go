package utilities

import (
	"os"
	"strconv"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/segmentio/ksuid"
)

// NewKSUID generates a new globally unique KSUID string.
func NewKSUID() string {
	return ksuid.New().String()
}

var (
	nodeOnce sync.Once
	node     *snowflake.Node
	nodeErr  error
)

// NewSnowflakeID generates a snowflake ID using a node ID from the
// environment variable SNOWFLAKE_NODE (default 1). The node is created once
// per process so IDs stay monotonic.
func NewSnowflakeID() (int64, error) {
	nodeOnce.Do(func() {
		nodeID := int64(1)
		if v := os.Getenv("SNOWFLAKE_NODE"); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				nodeID = n
			}
		}
		node, nodeErr = snowflake.NewNode(nodeID)
	})
	if nodeErr != nil {
		return 0, nodeErr
	}
	return node.Generate().Int64(), nil
}
