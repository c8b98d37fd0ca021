package main

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// command groups the client-side CLI actions. Each action talks to a
// running daemon over its HTTP API and prints the response as JSON.
type command struct {
	api *APIFlags
}

func (c command) client() *APIClient {
	return NewAPIClient(c.api.APIUrl, c.api.APITimeout)
}

func (c command) Create(sourceID uint32, kind uint8) error {
	raw, err := c.client().CreateProcess(sourceID, kind)
	if err != nil {
		return err
	}
	return printJSON(raw)
}

func (c command) Get(id string) error {
	raw, err := c.client().GetProcess(id)
	if err != nil {
		return err
	}
	return printJSON(raw)
}

func (c command) SetState(id, state string) error {
	raw, err := c.client().SetState(id, state)
	if err != nil {
		return err
	}
	return printJSON(raw)
}

func (c command) List(sourceID uint32) error {
	raw, err := c.client().ListProcesses(sourceID)
	if err != nil {
		return err
	}
	return printJSON(raw)
}

func (c command) Delete(id string) error {
	if err := c.client().DeleteProcess(id); err != nil {
		return err
	}
	fmt.Println("deleted", id)
	return nil
}

func (c command) Assign(supervisorID string) error {
	if supervisorID == "" {
		supervisorID = uuid.NewString()
	} else if _, err := uuid.Parse(supervisorID); err != nil {
		return fmt.Errorf("invalid supervisor id: %w", err)
	}
	raw, err := c.client().Assign(supervisorID)
	if err != nil {
		return err
	}
	if raw == nil {
		fmt.Println("no claimable process")
		return nil
	}
	return printJSON(raw)
}

func printJSON(raw json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return err
	}
	fmt.Println(buf.String())
	return nil
}
