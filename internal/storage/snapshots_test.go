/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"testing"
	"time"
)

func TestSnapshotsAppendListPrune(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t, 0)
	if _, ok, err := s.LatestSnapshot(ctx, "p1"); ok || err != nil {
		t.Fatalf("empty log: ok=%v err=%v", ok, err)
	}
	if err := s.AppendSnapshot(ctx, "p1", nil, time.Now()); err == nil {
		t.Fatalf("expected error for empty state")
	}
	base := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	for i := 0; i < 6; i++ {
		state := []byte{byte('a' + i)}
		if err := s.AppendSnapshot(ctx, "p1", state, base.Add(time.Duration(i)*time.Millisecond)); err != nil {
			t.Fatalf("AppendSnapshot %d: %v", i, err)
		}
	}
	latest, ok, err := s.LatestSnapshot(ctx, "p1")
	if err != nil || !ok || string(latest.State) != "f" {
		t.Fatalf("latest got %q ok=%v err=%v", latest.State, ok, err)
	}
	if !latest.TS.Equal(base.Add(5 * time.Millisecond)) {
		t.Fatalf("latest ts got %v", latest.TS)
	}
	list, err := s.ListSnapshots(ctx, "p1", 10)
	if err != nil || len(list) != 6 {
		t.Fatalf("ListSnapshots got %d err %v", len(list), err)
	}
	if err := s.PruneSnapshots(ctx, "p1", 3); err != nil {
		t.Fatalf("PruneSnapshots: %v", err)
	}
	list, _ = s.ListSnapshots(ctx, "p1", 10)
	if len(list) != 3 || string(list[0].State) != "f" || string(list[2].State) != "d" {
		t.Fatalf("after prune got %d entries", len(list))
	}
}

func TestSnapshotsPrunedOnAppend(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t, 4)
	base := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	for i := 0; i < 10; i++ {
		if err := s.AppendSnapshot(ctx, "p1", []byte("x"), base.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("AppendSnapshot: %v", err)
		}
	}
	if err := s.AppendSnapshot(ctx, "p2", []byte("y"), base); err != nil {
		t.Fatalf("AppendSnapshot p2: %v", err)
	}
	list, _ := s.ListSnapshots(ctx, "p1", 0)
	if len(list) != 4 {
		t.Fatalf("p1 kept %d want 4", len(list))
	}
	if !list[3].TS.Equal(base.Add(6 * time.Second)) {
		t.Fatalf("oldest kept ts got %v", list[3].TS)
	}
	other, _ := s.ListSnapshots(ctx, "p2", 0)
	if len(other) != 1 {
		t.Fatalf("pruning leaked across projects: p2 has %d", len(other))
	}
}
