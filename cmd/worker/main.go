// Worker executable for temporal-agent-harness
//
// This starts a Temporal worker that executes workflows and activities.
package main

import (
	"log"
	"os"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/mfateev/agentharness/internal/activities"
	"github.com/mfateev/agentharness/internal/llm"
	"github.com/mfateev/agentharness/internal/storage"
	"github.com/mfateev/agentharness/internal/temporalclient"
	"github.com/mfateev/agentharness/internal/tools"
	"github.com/mfateev/agentharness/internal/tools/handlers"
	"github.com/mfateev/agentharness/internal/version"
	"github.com/mfateev/agentharness/internal/workflow"
)

const (
	TaskQueue = "temporal-agent-harness"
)

func main() {
	// Check for at least one LLM provider API key
	hasOpenAI := os.Getenv("OPENAI_API_KEY") != ""
	hasAnthropic := os.Getenv("ANTHROPIC_API_KEY") != ""

	if !hasOpenAI && !hasAnthropic {
		log.Fatal("At least one LLM provider API key is required: OPENAI_API_KEY or ANTHROPIC_API_KEY")
	}

	if hasOpenAI {
		log.Println("OpenAI provider available")
	}
	if hasAnthropic {
		log.Println("Anthropic provider available")
	}

	// Load Temporal client options via envconfig (supports env vars, config files, TLS)
	opts := temporalclient.MustLoadClientOptions("", "")

	c, err := client.Dial(opts)
	if err != nil {
		log.Fatalf("Failed to create Temporal client: %v", err)
	}
	defer c.Close()

	// Create worker
	w := worker.New(c, TaskQueue, worker.Options{})

	// Register workflows
	w.RegisterWorkflow(workflow.AgenticWorkflow)
	w.RegisterWorkflow(workflow.AgenticWorkflowContinued)

	// Create tool registry with the two built-in handlers the session
	// protocol exposes to the model: shell and read_file.
	toolRegistry := tools.NewToolRegistry()
	toolRegistry.Register(handlers.NewShellTool())
	toolRegistry.Register(handlers.NewReadFileTool())
	log.Printf("Registered %d tools", toolRegistry.ToolCount())

	// Create multi-provider LLM client (supports both OpenAI and Anthropic)
	llmClient := llm.NewMultiProviderClient()

	// Register activities under the names the workflow dispatches to.
	llmActivities := activities.NewLLMActivities(llmClient)
	w.RegisterActivityWithOptions(llmActivities.ExecuteLLMCall, activity.RegisterOptions{Name: "model_call"})
	w.RegisterActivityWithOptions(llmActivities.ExecuteCompact, activity.RegisterOptions{Name: "ExecuteCompact"})

	// toolStore keeps per-conversation state (e.g. the shell tool's
	// working directory) alive across activity calls for the life of this
	// worker process.
	toolStore := storage.NewStore()
	toolActivities := activities.NewToolActivities(toolRegistry, toolStore)
	w.RegisterActivityWithOptions(toolActivities.ExecuteTool, activity.RegisterOptions{Name: "tool_exec"})

	// Start worker
	log.Printf("Worker version: %s", version.GitCommit)
	log.Printf("Starting worker on task queue: %s", TaskQueue)
	if opts.HostPort != "" {
		log.Printf("Temporal server: %s", opts.HostPort)
	}

	err = w.Run(worker.InterruptCh())
	if err != nil {
		log.Fatalf("Failed to start worker: %v", err)
	}

	log.Println("Worker stopped")
}
