package database

import (
	"context"
	"errors"
	"testing"
)

func TestConnectWithoutURI(t *testing.T) {
	m := NewMongo(Config{Name: "invoicer"})

	if err := m.Connect(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("Connect() error = %v, want ErrNotConfigured", err)
	}
	if m.Connected() {
		t.Error("Connected() = true after failed connect")
	}
	if _, err := m.Database(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Database() error = %v, want ErrNotConfigured", err)
	}
}

func TestDisconnectUnconnected(t *testing.T) {
	m := NewMongo(Config{URI: "mongodb://localhost:27017", Name: "invoicer"})
	if err := m.Disconnect(context.Background()); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	if err := m.Ping(context.Background()); err == nil {
		t.Error("Ping() on unconnected handle should fail")
	}
}
