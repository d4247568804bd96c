package storage

import (
	"context"
	"testing"
)

func TestFormatHash(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"ipfs://QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG", "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"},
		{"QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG", "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"},
	}
	for _, tc := range tests {
		if got := formatHash(tc.in); got != tc.want {
			t.Fatalf("formatHash(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestUnconfiguredClient(t *testing.T) {
	var c *Client

	if _, err := c.UploadJSON(context.Background(), map[string]string{"a": "b"}); err == nil {
		t.Fatal("expected error for unconfigured client")
	}
	if _, err := c.Fetch(context.Background(), "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"); err == nil {
		t.Fatal("expected error for unconfigured client")
	}
}

func TestFetchRejectsInvalidHash(t *testing.T) {
	c := &Client{}
	if _, err := c.Fetch(context.Background(), "not-a-cid"); err == nil {
		t.Fatal("expected error for invalid hash")
	}
}
