// Package tool registers callable tools and executes the model's tool
// requests. The registry implements the orchestrator's ToolExecutor
// capability; execution failures are returned as error text inside the
// tool-result message so the model can see them and recover.
package tool
