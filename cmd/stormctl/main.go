// stormctl is a small client for the research service. It starts runs,
// follows their event streams, and can answer review checkpoints either from
// flags or interactively from stdin.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "start":
		err = cmdStart(os.Args[2:])
	case "stream":
		err = cmdStream(os.Args[2:])
	case "decide":
		err = cmdDecide(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "stormctl: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  stormctl start  -topic "..." [-editors N] [-human] [-server URL]
  stormctl stream -run RUN_ID [-interactive] [-server URL]
  stormctl decide -interaction ID -action approve|reject|modify [-feedback "..."] [-server URL]`)
}

func cmdStart(args []string) error {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	server := fs.String("server", "http://localhost:8081", "service base URL")
	topic := fs.String("topic", "", "research topic")
	editors := fs.Int("editors", 0, "editor count (0 = server default)")
	human := fs.Bool("human", false, "enable human review checkpoints")
	follow := fs.Bool("follow", true, "stream events after starting")
	_ = fs.Parse(args)

	if *topic == "" {
		return fmt.Errorf("-topic is required")
	}

	body, _ := json.Marshal(map[string]any{
		"topic":             *topic,
		"editor_count":      *editors,
		"enable_human_loop": *human,
	})
	resp, err := http.Post(*server+"/research", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("server returned %s", resp.Status)
	}

	var started struct {
		RunID       string `json:"run_id"`
		EditorCount int    `json:"editor_count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&started); err != nil {
		return err
	}
	fmt.Printf("run started: %s (%d editors)\n", started.RunID, started.EditorCount)

	if !*follow {
		return nil
	}
	return streamRun(*server, started.RunID, *human)
}

func cmdStream(args []string) error {
	fs := flag.NewFlagSet("stream", flag.ExitOnError)
	server := fs.String("server", "http://localhost:8081", "service base URL")
	runID := fs.String("run", "", "run id")
	interactive := fs.Bool("interactive", false, "answer review checkpoints from stdin")
	_ = fs.Parse(args)

	if *runID == "" {
		return fmt.Errorf("-run is required")
	}
	return streamRun(*server, *runID, *interactive)
}

func cmdDecide(args []string) error {
	fs := flag.NewFlagSet("decide", flag.ExitOnError)
	server := fs.String("server", "http://localhost:8081", "service base URL")
	interaction := fs.String("interaction", "", "interaction id")
	action := fs.String("action", "approve", "approve, reject or modify")
	feedback := fs.String("feedback", "", "reviewer feedback")
	_ = fs.Parse(args)

	if *interaction == "" {
		return fmt.Errorf("-interaction is required")
	}
	return sendDecision(*server, *interaction, *action, *feedback)
}

type event struct {
	Type           string  `json:"type"`
	Level          string  `json:"level"`
	Message        string  `json:"message"`
	Stage          string  `json:"stage"`
	Step           int     `json:"step"`
	TotalSteps     int     `json:"total_steps"`
	Content        string  `json:"content"`
	ProcessingTime float64 `json:"processing_time"`
	Error          string  `json:"error"`
}

// streamRun follows the run's SSE stream until the terminal event. In
// interactive mode it pauses on checkpoint announcements and submits the
// decision typed on stdin.
func streamRun(server, runID string, interactive bool) error {
	resp, err := http.Get(server + "/stream/sse?run_id=" + runID)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %s", resp.Status)
	}

	stdin := bufio.NewReader(os.Stdin)
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev event
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			continue
		}

		switch ev.Type {
		case "storm_progress":
			fmt.Printf("[%d/%d] %s\n", ev.Step, ev.TotalSteps, ev.Message)
		case "storm_complete":
			fmt.Printf("\ndone in %.1fs\n\n%s\n", ev.ProcessingTime, ev.Content)
			return nil
		case "storm_error":
			return fmt.Errorf("run failed: %s", ev.Error)
		default:
			fmt.Printf("  %-7s %s\n", ev.Level, ev.Message)
			if interactive && strings.Contains(ev.Message, "Waiting for review") {
				if err := answerCheckpoint(server, runID, stdin); err != nil {
					fmt.Fprintf(os.Stderr, "checkpoint: %v\n", err)
				}
			}
		}
	}
	return scanner.Err()
}

// answerCheckpoint looks up the pending interaction for the run and submits
// the decision read from stdin.
func answerCheckpoint(server, runID string, stdin *bufio.Reader) error {
	id, content, err := pendingInteraction(server, runID)
	if err != nil {
		return err
	}

	fmt.Printf("\n--- review requested ---\n%s\n", content)
	fmt.Print("action [approve/reject/modify] (default approve): ")
	action, _ := stdin.ReadString('\n')
	action = strings.TrimSpace(action)
	if action == "" {
		action = "approve"
	}
	feedback := ""
	if action != "approve" {
		fmt.Print("feedback: ")
		feedback, _ = stdin.ReadString('\n')
		feedback = strings.TrimSpace(feedback)
	}
	return sendDecision(server, id, action, feedback)
}

func pendingInteraction(server, runID string) (id, content string, err error) {
	// The announcement event can land just before the registry entry is
	// visible; retry briefly.
	for attempt := 0; attempt < 10; attempt++ {
		resp, err := http.Get(server + "/interactions?run_id=" + runID)
		if err != nil {
			return "", "", err
		}
		var body struct {
			Interactions []struct {
				ID      string `json:"interaction_id"`
				Content string `json:"content"`
			} `json:"interactions"`
		}
		decodeErr := json.NewDecoder(resp.Body).Decode(&body)
		resp.Body.Close()
		if decodeErr == nil && len(body.Interactions) > 0 {
			return body.Interactions[0].ID, body.Interactions[0].Content, nil
		}
		time.Sleep(200 * time.Millisecond)
	}
	return "", "", fmt.Errorf("no pending interaction for run %s", runID)
}

func sendDecision(server, interactionID, action, feedback string) error {
	body, _ := json.Marshal(map[string]any{
		"interaction_id": interactionID,
		"action":         action,
		"feedback":       feedback,
	})
	resp, err := http.Post(server+"/interactions/decision", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("decision rejected: %s", resp.Status)
	}
	fmt.Printf("decision %q delivered\n", action)
	return nil
}
