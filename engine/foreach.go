package engine

// ForEachDriver expands a forEach producer's commit into per-item forward
// runs for its fanout=map dependents. This is independent of the Routing
// Engine's explicit on_success/on_fail/on_finish run lists: a fanout=map
// dependent becomes eligible once per item purely because of its dependency
// declaration, the same way a fanout=reduce dependent becomes eligible once
// via ordinary default wave progression. These expansions are not routing
// emissions and are not counted against the loop budget.
type ForEachDriver struct {
	resolver *Resolver
}

// NewForEachDriver binds a ForEachDriver to a run's resolver.
func NewForEachDriver(resolver *Resolver) *ForEachDriver {
	return &ForEachDriver{resolver: resolver}
}

// Expand returns one ForwardRun per item, per fanout=map dependent of
// entry.CheckID, when entry carries a forEach result. A check can depend on
// more than one forEach producer; each dependent is driven once per parent
// that committed, so dependents with multiple map-fanout parents may be
// scheduled multiple times; downstream idempotency is the dependent's
// responsibility, mirroring the "soft" dependency-group semantics.
func (d *ForEachDriver) Expand(entry *JournalEntry) []ForwardRun {
	if !entry.Result.IsForEach || len(entry.Result.ForEachItems) == 0 {
		return nil
	}

	var forwards []ForwardRun
	for _, id := range d.resolver.IDs() {
		dep, ok := d.resolver.Check(id)
		if !ok || dep.EffectiveFanout() != FanoutMap {
			continue
		}
		if !dependsOn(dep, entry.CheckID) {
			continue
		}
		for i := range entry.Result.ForEachItems {
			forwards = append(forwards, ForwardRun{
				Target: dep.ID,
				Scope:  entry.Scope.Child(entry.CheckID, i),
			})
		}
	}
	return forwards
}

func dependsOn(c *Check, parent string) bool {
	for _, group := range c.DependencyGroups() {
		for _, d := range group {
			if d == parent {
				return true
			}
		}
	}
	return false
}
