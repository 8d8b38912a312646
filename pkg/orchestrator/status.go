package orchestrator

import (
	"github.com/zen-systems/finroute/pkg/gate"
	"github.com/zen-systems/finroute/pkg/health"
	"github.com/zen-systems/finroute/pkg/responder"
)

// ResponderStatus is the operational view of one responder.
type ResponderStatus struct {
	Descriptor responder.Descriptor `json:"descriptor"`
	Gate       gate.Snapshot        `json:"gate"`
	Health     *health.Stats        `json:"health,omitempty"`
}

// StatusReport summarizes the registry, gates and recorded health.
type StatusReport struct {
	Total      int                `json:"total"`
	Active     int                `json:"active"`
	Inactive   int                `json:"inactive"`
	Local      int                `json:"local"`
	Remote     int                `json:"remote"`
	OpenGates  int                `json:"open_gates"`
	System     health.SystemStats `json:"system"`
	Responders []ResponderStatus  `json:"responders"`
}

// Status reports every registered responder in registry order. Gates that have
// not been used yet are reported closed.
func (o *Orchestrator) Status() StatusReport {
	var rep StatusReport
	if o.monitor != nil {
		rep.System = o.monitor.System()
	} else {
		rep.System.Status = health.StatusHealthy
	}

	for _, d := range o.router.Registry().List() {
		rep.Total++
		if d.Active {
			rep.Active++
		} else {
			rep.Inactive++
		}
		if d.IsLocal {
			rep.Local++
		} else {
			rep.Remote++
		}

		st := ResponderStatus{Descriptor: d}
		if snap, ok := o.gates.Snapshot(d.ID); ok {
			st.Gate = snap
		} else {
			st.Gate = gate.Snapshot{ResponderID: d.ID, State: gate.StateClosed}
		}
		if st.Gate.State == gate.StateOpen {
			rep.OpenGates++
		}
		if o.monitor != nil {
			if stats, ok := o.monitor.Stats(d.ID); ok {
				st.Health = &stats
			}
		}
		rep.Responders = append(rep.Responders, st)
	}
	return rep
}
