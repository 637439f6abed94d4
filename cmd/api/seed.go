package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"checkin/internal/roster"
	"checkin/internal/schedule"
)

// seedFile is the dev-mode fixture format for DATA_BACKEND=memory.
type seedFile struct {
	Schedules []schedule.Window `json:"schedules"`
	Students  []roster.Student  `json:"students"`
}

func loadSeed(path string, dir *schedule.Memory, people *roster.Memory) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed: %w", err)
	}
	var seed seedFile
	if err := json.Unmarshal(raw, &seed); err != nil {
		return fmt.Errorf("parse seed %s: %w", path, err)
	}
	for _, w := range seed.Schedules {
		if err := dir.Put(w); err != nil {
			return fmt.Errorf("seed schedule: %w", err)
		}
	}
	for _, s := range seed.Students {
		people.Put(s)
	}
	log.Printf("seeded %d schedules and %d students from %s", len(seed.Schedules), len(seed.Students), path)
	return nil
}
