package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/RecoveryAshes/linkscout/internal/utils"
)

// ServerName MCP服务器名称
const ServerName = "linkscout"

// 传输方式
const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
)

// SSE服务关闭等待时间
const sseShutdownTimeout = 5 * time.Second

// NewMCPServer 把注册表中的工具挂到MCP服务器上
// 工具结果以JSON文本作为内容返回,工具错误以 isError 结果返回
func NewMCPServer(registry *Registry, version string) (*server.MCPServer, error) {
	logger := utils.Component("serve")
	s := server.NewMCPServer(ServerName, version, server.WithToolCapabilities(false))

	for _, def := range registry.Definitions() {
		schema, err := json.Marshal(def.Parameters)
		if err != nil {
			return nil, fmt.Errorf("序列化%s参数定义失败: %w", def.Name, err)
		}

		name := def.Name
		s.AddTool(mcp.NewToolWithRawSchema(name, def.Description, schema),
			func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				logger.Info().Str("tool", name).Msg("收到调用")

				args, err := json.Marshal(req.Params.Arguments)
				if err != nil {
					return mcp.NewToolResultError(fmt.Sprintf("无法解析参数: %v", err)), nil
				}

				result, err := registry.Invoke(ctx, name, args)
				if err != nil {
					logger.Warn().Err(err).Str("tool", name).Msg("调用失败")
					return mcp.NewToolResultError(err.Error()), nil
				}
				return mcp.NewToolResultText(string(result)), nil
			})
	}
	return s, nil
}

// ServeStdio 在 in/out 上运行MCP stdio传输
// 输入结束时返回 nil,ctx 取消时返回 ctx.Err()
func ServeStdio(ctx context.Context, registry *Registry, version string, in io.Reader, out io.Writer) error {
	s, err := NewMCPServer(registry, version)
	if err != nil {
		return err
	}

	stdio := server.NewStdioServer(s)
	stdio.SetErrorLogger(log.New(utils.Component("mcp"), "", 0))
	return stdio.Listen(ctx, in, out)
}

// ServeSSE 在 addr 上运行MCP SSE传输,ctx 取消后关闭服务
func ServeSSE(ctx context.Context, registry *Registry, version string, addr string) error {
	s, err := NewMCPServer(registry, version)
	if err != nil {
		return err
	}

	sse := server.NewSSEServer(s)
	errCh := make(chan error, 1)
	go func() {
		errCh <- sse.Start(addr)
	}()
	utils.Infof("SSE服务已监听: %s", addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), sseShutdownTimeout)
		defer cancel()
		if err := sse.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("关闭SSE服务失败: %w", err)
		}
		return ctx.Err()
	}
}
