// CLI client for temporal-agent-harness workflows.
//
// Sub-commands:
//
//	start     --message "..."                 Start a new conversation, print its workflow ID
//	chat      --workflow-id <id>               Attach an interactive terminal chat to a running conversation
//	send      --workflow-id <id> --message ""  Deliver a user turn via signal
//	approve   --workflow-id <id> --call-id ID  Approve a pending tool call
//	deny      --workflow-id <id> --call-id ID  Deny a pending tool call
//	cancel    --workflow-id <id>               Abort the current turn
//	end       --workflow-id <id>               Shut down the session
//	history   --workflow-id <id> [--since N]   Print events since index N (default: all)
//	state     --workflow-id <id>               Print the current phase/stats
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/client"

	"github.com/mfateev/agentharness/internal/models"
	"github.com/mfateev/agentharness/internal/session"
	"github.com/mfateev/agentharness/internal/temporalclient"
	"github.com/mfateev/agentharness/internal/tui"
	"github.com/mfateev/agentharness/internal/workflow"
)

const TaskQueue = "temporal-agent-harness"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch subcommand := os.Args[1]; subcommand {
	case "start":
		cmdStart(os.Args[2:])
	case "chat":
		cmdChat(os.Args[2:])
	case "send":
		cmdSend(os.Args[2:])
	case "approve":
		cmdApproval(os.Args[2:], true)
	case "deny":
		cmdApproval(os.Args[2:], false)
	case "cancel":
		cmdCancel(os.Args[2:])
	case "end":
		cmdEnd(os.Args[2:])
	case "history":
		cmdHistory(os.Args[2:])
	case "state":
		cmdState(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown sub-command: %s\n\n", subcommand)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage: client <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  start      Start a new conversation")
	fmt.Fprintln(os.Stderr, "  chat       Attach an interactive terminal chat")
	fmt.Fprintln(os.Stderr, "  send       Deliver a user message")
	fmt.Fprintln(os.Stderr, "  approve    Approve a pending tool call")
	fmt.Fprintln(os.Stderr, "  deny       Deny a pending tool call")
	fmt.Fprintln(os.Stderr, "  cancel     Abort the current turn")
	fmt.Fprintln(os.Stderr, "  end        Shut down the session")
	fmt.Fprintln(os.Stderr, "  history    Print events since an index")
	fmt.Fprintln(os.Stderr, "  state      Print current phase and stats")
}

func dialTemporal() client.Client {
	opts := temporalclient.MustLoadClientOptions("", "")
	c, err := client.Dial(opts)
	if err != nil {
		log.Fatalf("Failed to create Temporal client: %v", err)
	}
	return c
}

// cmdStart starts a new conversation workflow.
func cmdStart(args []string) {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	message := fs.String("message", "", "Initial user message (optional)")
	provider := fs.String("provider", "anthropic", "LLM provider: anthropic or openai")
	model := fs.String("model", "claude-sonnet-4.5", "LLM model to use")
	approvalMode := fs.String("approval-mode", string(models.ApprovalModeOnRequest), "never | on_request | always")
	attach := fs.Bool("attach", true, "Attach an interactive chat after starting")
	fs.Parse(args)

	c := dialTemporal()
	defer c.Close()

	workflowID := fmt.Sprintf("agent-%s", uuid.New().String()[:8])

	cwd, err := os.Getwd()
	if err != nil {
		cwd = ""
	}

	cfg := models.DefaultSessionConfiguration()
	cfg.Model.Provider = *provider
	cfg.Model.Model = *model
	cfg.ApprovalMode = models.ApprovalMode(*approvalMode)
	cfg.Cwd = cwd
	cfg.SessionTaskQueue = TaskQueue

	input := workflow.WorkflowInput{
		ConversationID: workflowID,
		UserMessage:    *message,
		Config:         cfg,
	}

	ctx := context.Background()
	_, err = c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: TaskQueue,
	}, workflow.AgenticWorkflow, input)
	if err != nil {
		log.Fatalf("Failed to start workflow: %v", err)
	}

	log.Printf("Started conversation %s", workflowID)
	fmt.Println(workflowID)

	if *attach {
		c.Close()
		runChat(workflowID)
	}
}

// cmdChat attaches an interactive terminal chat to an already-running
// conversation.
func cmdChat(args []string) {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	workflowID := fs.String("workflow-id", "", "Workflow ID (required)")
	fs.Parse(args)

	if *workflowID == "" {
		log.Fatal("Error: --workflow-id is required")
	}

	runChat(*workflowID)
}

func runChat(workflowID string) {
	c := dialTemporal()
	defer c.Close()

	sess := session.New(c, workflowID)
	if err := tui.Run(sess, workflowID); err != nil {
		log.Fatalf("Chat ended with error: %v", err)
	}
}

func cmdSend(args []string) {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	workflowID := fs.String("workflow-id", "", "Workflow ID (required)")
	message := fs.String("message", "", "User message (required)")
	fs.Parse(args)

	if *workflowID == "" || *message == "" {
		log.Fatal("Error: --workflow-id and --message are required")
	}

	withSession(*workflowID, func(ctx context.Context, sess *session.Session) error {
		return sess.Submit(ctx, session.Op{Kind: session.OpUserInput, Content: *message})
	})
}

func cmdApproval(args []string, approve bool) {
	name := "deny"
	if approve {
		name = "approve"
	}
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	workflowID := fs.String("workflow-id", "", "Workflow ID (required)")
	callID := fs.String("call-id", "", "Tool call ID to decide on (required)")
	fs.Parse(args)

	if *workflowID == "" || *callID == "" {
		log.Fatal("Error: --workflow-id and --call-id are required")
	}

	resp := workflow.ApprovalResponse{}
	if approve {
		resp.Approved = []string{*callID}
	} else {
		resp.Denied = []string{*callID}
	}

	withSession(*workflowID, func(ctx context.Context, sess *session.Session) error {
		return sess.Submit(ctx, session.Op{Kind: session.OpApproval, Approval: resp})
	})
}

func cmdCancel(args []string) {
	fs := flag.NewFlagSet("cancel", flag.ExitOnError)
	workflowID := fs.String("workflow-id", "", "Workflow ID (required)")
	fs.Parse(args)

	if *workflowID == "" {
		log.Fatal("Error: --workflow-id is required")
	}

	withSession(*workflowID, func(ctx context.Context, sess *session.Session) error {
		return sess.Submit(ctx, session.Op{Kind: session.OpCancel})
	})
}

func cmdEnd(args []string) {
	fs := flag.NewFlagSet("end", flag.ExitOnError)
	workflowID := fs.String("workflow-id", "", "Workflow ID (required)")
	reason := fs.String("reason", "", "Shutdown reason (optional)")
	fs.Parse(args)

	if *workflowID == "" {
		log.Fatal("Error: --workflow-id is required")
	}

	withSession(*workflowID, func(ctx context.Context, sess *session.Session) error {
		return sess.Submit(ctx, session.Op{Kind: session.OpShutdown, Reason: *reason})
	})
}

func cmdHistory(args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	workflowID := fs.String("workflow-id", "", "Workflow ID (required)")
	since := fs.Int64("since", -1, "Print events with index greater than this")
	fs.Parse(args)

	if *workflowID == "" {
		log.Fatal("Error: --workflow-id is required")
	}

	c := dialTemporal()
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := c.QueryWorkflow(ctx, *workflowID, "", workflow.QueryGetEventsSince, workflow.GetEventsSinceRequest{Since: *since})
	if err != nil {
		log.Fatalf("Failed to query history: %v", err)
	}

	var result workflow.GetEventsSinceResponse
	if err := resp.Get(&result); err != nil {
		log.Fatalf("Failed to decode history: %v", err)
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		log.Fatalf("Failed to marshal history: %v", err)
	}
	fmt.Println(string(data))
}

func cmdState(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	workflowID := fs.String("workflow-id", "", "Workflow ID (required)")
	fs.Parse(args)

	if *workflowID == "" {
		log.Fatal("Error: --workflow-id is required")
	}

	c := dialTemporal()
	defer c.Close()

	sess := session.New(c, *workflowID)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	state, err := sess.GetState(ctx)
	if err != nil {
		log.Fatalf("Failed to query state: %v", err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		log.Fatalf("Failed to marshal state: %v", err)
	}
	fmt.Println(string(data))
}

// withSession dials Temporal, runs fn with a fresh Session and a bounded
// context, and exits the process on error.
func withSession(workflowID string, fn func(ctx context.Context, sess *session.Session) error) {
	c := dialTemporal()
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := fn(ctx, session.New(c, workflowID)); err != nil {
		log.Fatalf("Operation failed: %v", err)
	}
	log.Println("ok")
}
