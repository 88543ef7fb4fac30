package tool

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"

	"github.com/kadirpekel/loom/message"
)

// ZKPutDeclaration is the schema for the zk_put tool: write arbitrary bytes
// to a ZooKeeper path, creating any missing parent nodes along the way.
// Grounded on the teacher's tools/zk-put.go standalone CLI, adapted from a
// flag-parsed one-shot binary into a ContextualFunc tool entry — the CLI's
// "ensure parents, create-or-set" body is kept almost verbatim inside
// ZKPut, with the data taken from the call's arguments instead of stdin.
var ZKPutDeclaration = Declaration{
	Name:        "zk_put",
	Description: "Write data to a ZooKeeper path, creating parent znodes as needed.",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{"type": "string", "description": "ZooKeeper path to write, e.g. /config/service-a"},
			"data": map[string]any{"type": "string", "description": "Data to store at path"},
		},
		"required": []string{"path", "data"},
	},
	Source: "local",
}

// ZKPutDeps is the key ZKPut looks up in ToolContext.Deps for a live
// *zk.Conn; the caller is responsible for connecting and closing it (the
// tool never owns the connection's lifecycle, since it may be shared across
// many calls in one run).
const ZKPutDeps = "zk_conn"

// ZKPut implements the zk_put tool (see ZKPutDeclaration). It requires a
// *zk.Conn under ToolContext.Deps[ZKPutDeps].
func ZKPut(ctx context.Context, tc ToolContext, args map[string]any) (string, []message.Attachment, error) {
	path, _ := args["path"].(string)
	data, _ := args["data"].(string)
	if path == "" {
		return "", nil, fmt.Errorf("zk_put: path is required")
	}

	conn, ok := tc.Deps[ZKPutDeps].(*zk.Conn)
	if !ok || conn == nil {
		return "", nil, fmt.Errorf("zk_put: no zookeeper connection in tool context (expected Deps[%q])", ZKPutDeps)
	}

	if err := ensureParents(conn, path); err != nil {
		return "", nil, err
	}

	exists, stat, err := conn.Exists(path)
	if err != nil {
		return "", nil, fmt.Errorf("zk_put: checking %s: %w", path, err)
	}
	if exists {
		if _, err := conn.Set(path, []byte(data), stat.Version); err != nil {
			return "", nil, fmt.Errorf("zk_put: updating %s: %w", path, err)
		}
		return fmt.Sprintf("updated %s (%d bytes)", path, len(data)), nil, nil
	}
	if _, err := conn.Create(path, []byte(data), 0, zk.WorldACL(zk.PermAll)); err != nil {
		return "", nil, fmt.Errorf("zk_put: creating %s: %w", path, err)
	}
	return fmt.Sprintf("created %s (%d bytes)", path, len(data)), nil, nil
}

func ensureParents(conn *zk.Conn, path string) error {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	parent := ""
	for i := 0; i < len(parts)-1; i++ {
		parent += "/" + parts[i]
		exists, _, err := conn.Exists(parent)
		if err != nil {
			return fmt.Errorf("zk_put: checking parent %s: %w", parent, err)
		}
		if !exists {
			if _, err := conn.Create(parent, []byte{}, 0, zk.WorldACL(zk.PermAll)); err != nil && err != zk.ErrNodeExists {
				return fmt.Errorf("zk_put: creating parent %s: %w", parent, err)
			}
		}
	}
	return nil
}

// DialZK is a small helper mirroring the teacher CLI's zk.Connect call, for
// callers building the ZKPutDeps connection.
func DialZK(servers []string, timeout time.Duration) (*zk.Conn, <-chan zk.Event, error) {
	return zk.Connect(servers, timeout)
}
