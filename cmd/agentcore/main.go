// Command agentcore is a minimal sample driver: it wires the library's
// own packages together into a single-turn coding agent run against
// stdin/stdout, the way a real caller (an editor plugin, a CI bot) would
// assemble them. It is not a general-purpose CLI.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"agentcore/agent"
	"agentcore/credential"
	"agentcore/dispatch"
	"agentcore/logging"
	"agentcore/providers/anthropic"
	"agentcore/tools"
	"agentcore/tools/builtin"
	"agentcore/types"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintln(os.Stderr, "loading .env:", err)
	}
	log := logging.Get(logging.Options{})

	workDir, err := os.Getwd()
	if err != nil {
		log.Fatal().Err(err).Msg("resolving working directory")
	}

	registry, err := tools.NewRegistry(
		builtin.Read(workDir),
		builtin.Write(workDir),
		builtin.Edit(workDir),
		builtin.Bash(workDir, nil),
		builtin.Grep(workDir),
		builtin.Find(workDir),
		builtin.Ls(workDir),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("registering builtin tools")
	}

	dispatcher := dispatch.New(
		dispatch.MapRegistry{types.ProviderAnthropic: anthropic.New()},
		dispatch.DefaultOptions(),
	)

	loop := agent.New(dispatcher, credential.NewEnvResolver("", "AGENTCORE"), agent.DefaultOptions())

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	fmt.Print("> ")
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return
	}
	prompt := scanner.Text()

	state := &agent.State{
		SystemPrompt: "You are a careful coding assistant with access to file and shell tools.",
		Model: types.Model{
			Provider: types.ProviderAnthropic,
			ID:       "claude-opus-4-6",
			Limit:    types.Limit{Context: 200_000, Output: 8192},
		},
		Tools: registry,
		Messages: []types.Message{
			{Role: types.RoleUser, Content: []types.ContentBlock{types.Text(prompt)}},
		},
	}

	events := make(chan agent.Event, 16)
	go loop.Run(ctx, state, agent.Hooks{}, events)

	for ev := range events {
		printEvent(ev)
		if ev.Type == agent.EventAgentEnd {
			break
		}
	}
}

func printEvent(ev agent.Event) {
	switch ev.Type {
	case agent.EventMessageEnd:
		if ev.Message != nil {
			fmt.Println(ev.Message.Output.TextContent())
		}
	case agent.EventToolExecutionStart:
		fmt.Fprintf(os.Stderr, "[tool] %s %s\n", ev.ToolName, string(ev.ToolArgs))
	case agent.EventToolExecutionEnd:
		if ev.ToolResult != nil && ev.ToolResult.IsError {
			fmt.Fprintf(os.Stderr, "[tool error] %s: %s\n", ev.ToolName, ev.ToolResult.Text)
		}
	case agent.EventAgentEnd:
		if ev.Err != nil {
			fmt.Fprintln(os.Stderr, "agent error:", ev.Err)
		}
	}
}
