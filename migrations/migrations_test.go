package migrations

import (
	"io/fs"
	"regexp"
	"strings"
	"testing"
)

var createTable = regexp.MustCompile(`(?s)CREATE TABLE (\w+) \((.*?)\n\);`)

func tables(t *testing.T) map[string]string {
	t.Helper()
	files, err := fs.Glob(FS, "*.sql")
	if err != nil || len(files) == 0 {
		t.Fatalf("no migrations embedded: %v", err)
	}
	out := make(map[string]string)
	for _, name := range files {
		raw, err := fs.ReadFile(FS, name)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		text := string(raw)
		if !strings.Contains(text, "-- +goose Up") || !strings.Contains(text, "-- +goose Down") {
			t.Fatalf("%s lacks goose annotations", name)
		}
		for _, m := range createTable.FindAllStringSubmatch(text, -1) {
			out[m[1]] = m[2]
		}
	}
	return out
}

func column(body, name string) string {
	for _, line := range strings.Split(body, "\n") {
		fields := strings.Fields(line)
		if len(fields) > 0 && fields[0] == name {
			return line
		}
	}
	return ""
}

// Pool authorities journal create_pool and close_pool without ever opening
// a ledger position, so the journal owner must not require a participant.
func TestOperationOwnerIsUnconstrained(t *testing.T) {
	ops, ok := tables(t)["operations"]
	if !ok {
		t.Fatal("operations table missing")
	}
	owner := column(ops, "owner")
	if owner == "" {
		t.Fatal("operations.owner missing")
	}
	if strings.Contains(owner, "REFERENCES") {
		t.Fatalf("operations.owner must not reference another table: %s", strings.TrimSpace(owner))
	}
}

func TestBalancesBelongToParticipants(t *testing.T) {
	balances := tables(t)["balances"]
	if !strings.Contains(column(balances, "owner"), "REFERENCES participants") {
		t.Fatal("balances.owner should reference participants")
	}
}
