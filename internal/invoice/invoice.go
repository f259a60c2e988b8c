// Package invoice hands out sale invoice identifiers.
package invoice

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
)

type Generator interface {
	Next() string
}

// Snowflake produces "<prefix>-<snowflake id>". Ids from one node are
// strictly increasing; distinct terminals or replicas need distinct node ids.
type Snowflake struct {
	node   *snowflake.Node
	prefix string
}

func NewSnowflake(nodeID int64, prefix string) (*Snowflake, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("invoice node %d: %w", nodeID, err)
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "INV"
	}
	return &Snowflake{node: node, prefix: prefix}, nil
}

func (g *Snowflake) Next() string {
	return g.prefix + "-" + g.node.Generate().String()
}
