package httpclient

import (
	"strings"
	"testing"
)

func TestReadAllWithLimitUnderLimit(t *testing.T) {
	data, err := ReadAllWithLimit(strings.NewReader("hello"), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("got %q", data)
	}
}

func TestReadAllWithLimitExceeded(t *testing.T) {
	_, err := ReadAllWithLimit(strings.NewReader("hello world"), 5)
	if !IsResponseTooLarge(err) {
		t.Fatalf("expected ResponseTooLargeError, got %v", err)
	}
}

func TestReadAllWithLimitDisabled(t *testing.T) {
	data, err := ReadAllWithLimit(strings.NewReader("hello world"), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "hello world" {
		t.Fatalf("got %q", data)
	}
}
