// Package credlist reads user, password and user:pass lists.
package credlist

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/CodeMonkeyCybersecurity/owaspray/pkg/owa"
)

// LoadLines returns the non-empty lines of path, deduplicated in order.
// Passwords are not trimmed beyond the line ending so leading or trailing
// spaces survive.
func LoadLines(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open list: %w", err)
	}
	defer file.Close()

	lines, err := ReadLines(file)
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", path, err)
	}
	return lines, nil
}

// ReadLines is LoadLines for an open reader.
func ReadLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return Unique(lines), nil
}

// Unique drops empty and repeated entries, preserving order.
func Unique(values []string) []string {
	seen := make(map[string]bool)
	var result []string
	for _, v := range values {
		if !seen[v] && v != "" {
			seen[v] = true
			result = append(result, v)
		}
	}
	return result
}

// ParsePairs splits user:pass lines on the first colon, so passwords may
// contain colons.
func ParsePairs(lines []string) ([]owa.Credential, error) {
	creds := make([]owa.Credential, 0, len(lines))
	for i, line := range lines {
		user, pass, ok := strings.Cut(line, ":")
		user = strings.TrimSpace(user)
		if !ok || user == "" {
			return nil, fmt.Errorf("line %d: expected user:pass", i+1)
		}
		creds = append(creds, owa.Credential{Username: user, Password: pass})
	}
	return creds, nil
}

// LoadPairs reads a user:pass file.
func LoadPairs(path string) ([]owa.Credential, error) {
	lines, err := LoadLines(path)
	if err != nil {
		return nil, err
	}
	creds, err := ParsePairs(lines)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return creds, nil
}

// Usernames trims whitespace from every entry, which passwords never get.
func Usernames(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, strings.TrimSpace(v))
	}
	return Unique(out)
}
