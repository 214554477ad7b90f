// Command papyrus-chat is an interactive terminal client for the papyrusd
// query API. It keeps the conversation history locally and replays it with
// every question, mirroring what a browser frontend would do.
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

	"github.com/fatih/color"

	papyrus "github.com/fzimmer/papyrus"
)

func main() {
	serverURL := flag.String("server", "http://localhost:8000", "papyrusd base URL")
	documentID := flag.String("document", "", "restrict answers to one document ID")
	flag.Parse()

	bold := color.New(color.Bold)
	prompt := color.New(color.FgCyan, color.Bold)
	answer := color.New(color.FgGreen)
	errc := color.New(color.FgRed)

	bold.Println("papyrus chat. /docs lists documents, /quit exits")

	var history []papyrus.ChatTurn
	scanner := bufio.NewScanner(os.Stdin)

	for {
		prompt.Print("you> ")
		if !scanner.Scan() {
			fmt.Println()
			return
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit", line == "/exit":
			return
		case line == "/docs":
			if err := listDocuments(*serverURL); err != nil {
				errc.Printf("error: %v\n", err)
			}
			continue
		}

		reply, err := ask(*serverURL, papyrus.QueryRequest{
			Question:    line,
			ChatHistory: history,
			DocumentID:  *documentID,
		}, answer, errc)
		if err != nil {
			errc.Printf("error: %v\n", err)
			continue
		}

		history = append(history,
			papyrus.ChatTurn{Role: "user", Content: line},
			papyrus.ChatTurn{Role: "assistant", Content: reply},
		)
	}
}

// ask streams one answer, printing fragments as they arrive, and returns the
// full accumulated reply for the history.
func ask(serverURL string, req papyrus.QueryRequest, answer, errc *color.Color) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", err
	}

	resp, err := http.Post(serverURL+"/query", "application/json", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return "", fmt.Errorf("server: %s", apiErr.Error)
		}
		return "", fmt.Errorf("server returned %s", resp.Status)
	}

	var full strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		if data == "[DONE]" {
			break
		}
		if msg, ok := strings.CutPrefix(data, "[ERROR] "); ok {
			fmt.Println()
			errc.Printf("stream error: %s\n", msg)
			break
		}

		answer.Print(data)
		full.WriteString(data)
	}
	fmt.Println()
	if err := scanner.Err(); err != nil {
		return full.String(), err
	}
	return full.String(), nil
}

func listDocuments(serverURL string) error {
	resp, err := http.Get(serverURL + "/documents")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var docs []papyrus.Document
	if err := json.NewDecoder(resp.Body).Decode(&docs); err != nil {
		return err
	}
	if len(docs) == 0 {
		fmt.Println("no documents ingested yet")
		return nil
	}
	for _, d := range docs {
		fmt.Printf("%s  %s\n", d.ID, d.Title)
	}
	return nil
}
