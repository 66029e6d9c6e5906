/**
* Copyright 2018 Comcast Cable Communications Management, LLC
* Licensed under the Apache License, Version 2.0 (the "License");
* you may not use this file except in compliance with the License.
* You may obtain a copy of the License at
* http://www.apache.org/licenses/LICENSE-2.0
* Unless required by applicable law or agreed to in writing, software
* distributed under the License is distributed on an "AS IS" BASIS,
* WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
* See the License for the specific language governing permissions and
* limitations under the License.
 */

package fetchengine

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// guard is the per-source single-flight coordinator (spec.md §4.9), built
// on golang.org/x/sync/singleflight rather than a hand-rolled leader/
// follower map: the teacher's go.mod already carries x/sync, and DoChan's
// channel result is a natural fit for a follower that must respect the
// caller's deadline instead of blocking forever.
type guard struct {
	sf sync.Map // source_id -> struct{} marking an in-flight leader
	g  singleflight.Group
}

func newGuard() *guard {
	return &guard{}
}

// InFlight reports whether a leader fetch is currently running for
// sourceID (spec.md §4.9's InFlight(source_id) → bool, used by the
// scheduler to skip a tick without penalty).
func (g *guard) InFlight(sourceID string) bool {
	_, ok := g.sf.Load(sourceID)
	return ok
}

// do runs fn as leader if no fetch is in flight for key, otherwise
// subscribes to the leader's result. The follower wait respects ctx: a
// canceled/expired ctx returns ctx.Err() without canceling the leader
// (spec.md §4.7's cancellation note — "a canceled external call does not
// cancel the underlying leader fetch").
func (g *guard) do(ctx context.Context, key string, fn func() (interface{}, error)) (interface{}, error, bool) {
	ch := g.g.DoChan(key, func() (interface{}, error) {
		g.sf.Store(key, struct{}{})
		defer g.sf.Delete(key)
		return fn()
	})

	select {
	case res := <-ch:
		return res.Val, res.Err, res.Shared
	case <-ctx.Done():
		return nil, ctx.Err(), true
	}
}
