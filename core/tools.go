package pipeline

import (
	"context"
	"fmt"
	"net"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/loquilabs/loqui/core/llms"
)

// builtinTools are registered on every session unless overridden.
func builtinTools() []llms.Tool {
	return []llms.Tool{
		llms.NewTool("get_ip_address", "Get the machine's local IP address",
			func(struct{}) (string, error) {
				addrs, err := net.InterfaceAddrs()
				if err != nil {
					return "", fmt.Errorf("failed to list interfaces: %w", err)
				}
				for _, addr := range addrs {
					ipNet, ok := addr.(*net.IPNet)
					if !ok || ipNet.IP.IsLoopback() || ipNet.IP.To4() == nil {
						continue
					}
					return ipNet.IP.String(), nil
				}
				return "", fmt.Errorf("no non-loopback IPv4 address found")
			}),
	}
}

// executeTool runs one model-requested tool call. A failed or unknown tool
// reports its error back to the model as the tool result so the
// conversation can continue.
func (s *Session) executeTool(ctx context.Context, toolCall llms.ToolCall) string {
	ctx, span := tracer.Start(ctx, "execute tool")
	defer span.End()
	span.SetAttributes(attribute.String("tool.name", toolCall.Name))

	for _, tool := range s.tools {
		if tool.Function.Name != toolCall.Name {
			continue
		}
		response, err := tool.Execute(toolCall.Arguments)
		if err != nil {
			err = fmt.Errorf("failed to execute tool %q: %w", toolCall.Name, err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Sprintf("Error: %v", err)
		}
		return response
	}

	err := fmt.Errorf("tool not found: %s", toolCall.Name)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return fmt.Sprintf("Error: %v", err)
}
