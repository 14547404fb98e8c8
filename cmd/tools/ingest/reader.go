package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// readDocuments 把输入拆分为文档正文，跳过空文档。
func readDocuments(r io.Reader, format string) ([]string, error) {
	switch format {
	case "text", "":
		return readParagraphs(r)
	case "jsonl":
		return readJSONLines(r)
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}

func readParagraphs(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var (
		docs    []string
		current []string
	)
	flush := func() {
		if text := strings.TrimSpace(strings.Join(current, "\n")); text != "" {
			docs = append(docs, text)
		}
		current = current[:0]
	}
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		current = append(current, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	flush()
	return docs, nil
}

func readJSONLines(r io.Reader) ([]string, error) {
	dec := json.NewDecoder(r)
	var docs []string
	for line := 1; ; line++ {
		var rec struct {
			Content string `json:"content"`
		}
		if err := dec.Decode(&rec); err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("record %d: %w", line, err)
		}
		if text := strings.TrimSpace(rec.Content); text != "" {
			docs = append(docs, text)
		}
	}
	return docs, nil
}
