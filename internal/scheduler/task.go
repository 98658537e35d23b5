package scheduler

import (
	"encoding/json"
	"fmt"
)

// TaskID identifies a logical task for its whole life, across recurrences.
type TaskID uint64

// Kind tags the closed set of task payloads.
type Kind uint8

const (
	KindPolicyResolution Kind = iota + 1
	KindDiplomaticPulse
	KindUnrestCheck
	KindScriptedEventCheck
	KindDiplomaticMission
	KindInfrastructureProject
	KindMarketShock
)

var kindNames = map[Kind]string{
	KindPolicyResolution:      "policy-resolution",
	KindDiplomaticPulse:       "diplomatic-pulse",
	KindUnrestCheck:           "unrest-check",
	KindScriptedEventCheck:    "scripted-event-check",
	KindDiplomaticMission:     "diplomatic-mission",
	KindInfrastructureProject: "infrastructure-project",
	KindMarketShock:           "market-shock",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// Kinds lists every task kind in declaration order.
func Kinds() []Kind {
	return []Kind{
		KindPolicyResolution, KindDiplomaticPulse, KindUnrestCheck, KindScriptedEventCheck,
		KindDiplomaticMission, KindInfrastructureProject, KindMarketShock,
	}
}

// ParseKind resolves a kind from its string name.
func ParseKind(s string) (Kind, error) {
	for k, n := range kindNames {
		if n == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("scheduler: unknown task kind %q", s)
}

// Payload is the data a task carries. The set of implementations is closed
// to this package.
type Payload interface {
	Kind() Kind
	payload()
}

// PolicyResolution resolves every country's pending policy adjustments.
type PolicyResolution struct{}

// DiplomaticPulse regresses extreme relations toward neutral.
type DiplomaticPulse struct{}

// UnrestCheck applies stability/approval penalties to troubled countries.
type UnrestCheck struct{}

// ScriptedEventCheck evaluates one scripted event template.
type ScriptedEventCheck struct {
	Template string `json:"template"`
}

// DiplomaticMission lands a relation change between two countries.
type DiplomaticMission struct {
	Country string `json:"country"`
	Partner string `json:"partner"`
	Delta   int    `json:"delta"`
}

// InfrastructureProject completes a construction programme in a country.
type InfrastructureProject struct {
	Country   string  `json:"country"`
	Stability int     `json:"stability"`
	GDP       float64 `json:"gdp"` // added to GDP on completion
}

// MarketShock multiplies the commodity price when it lands.
type MarketShock struct {
	Factor float64 `json:"factor"`
}

func (PolicyResolution) Kind() Kind      { return KindPolicyResolution }
func (DiplomaticPulse) Kind() Kind       { return KindDiplomaticPulse }
func (UnrestCheck) Kind() Kind           { return KindUnrestCheck }
func (ScriptedEventCheck) Kind() Kind    { return KindScriptedEventCheck }
func (DiplomaticMission) Kind() Kind     { return KindDiplomaticMission }
func (InfrastructureProject) Kind() Kind { return KindInfrastructureProject }
func (MarketShock) Kind() Kind           { return KindMarketShock }

func (PolicyResolution) payload()      {}
func (DiplomaticPulse) payload()       {}
func (UnrestCheck) payload()           {}
func (ScriptedEventCheck) payload()    {}
func (DiplomaticMission) payload()     {}
func (InfrastructureProject) payload() {}
func (MarketShock) payload()           {}

// EncodePayload serialises a payload for storage.
func EncodePayload(p Payload) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", p.Kind(), err)
	}
	return data, nil
}

// DecodePayload restores a payload stored with EncodePayload.
func DecodePayload(k Kind, data []byte) (Payload, error) {
	var (
		p   Payload
		err error
	)
	switch k {
	case KindPolicyResolution:
		p = PolicyResolution{}
	case KindDiplomaticPulse:
		p = DiplomaticPulse{}
	case KindUnrestCheck:
		p = UnrestCheck{}
	case KindScriptedEventCheck:
		var v ScriptedEventCheck
		err = json.Unmarshal(data, &v)
		p = v
	case KindDiplomaticMission:
		var v DiplomaticMission
		err = json.Unmarshal(data, &v)
		p = v
	case KindInfrastructureProject:
		var v InfrastructureProject
		err = json.Unmarshal(data, &v)
		p = v
	case KindMarketShock:
		var v MarketShock
		err = json.Unmarshal(data, &v)
		p = v
	default:
		return nil, fmt.Errorf("scheduler: unknown task kind %d", k)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", k, err)
	}
	return p, nil
}

// Task is a copy of a scheduled task as seen outside the scheduler.
//
// For a task returned by DrainDue, Spec.DueAt is the occurrence that fired
// and Runs counts executions including this one. For a pending task, Runs
// counts executions so far.
type Task struct {
	ID      TaskID  `json:"id"`
	Payload Payload `json:"payload"`
	Spec    Spec    `json:"spec"`
	Runs    int     `json:"runs"`
}

// Kind is shorthand for t.Payload.Kind().
func (t Task) Kind() Kind { return t.Payload.Kind() }

func (t Task) String() string {
	return fmt.Sprintf("task #%d (%s)", t.ID, t.Kind())
}
