package world

// BodyAttributes describes an agent's physical envelope (§3.2).
type BodyAttributes struct {
	MassKg         float64 `cbor:"mass_kg"`
	RadiusCm       float64 `cbor:"radius_cm"`
	ThrustN        float64 `cbor:"thrust_n"`
	CrossSectionM2 float64 `cbor:"cross_section_m2"`
	HeightCm       float64 `cbor:"height_cm"`
	ExpansionSlots int32   `cbor:"expansion_slots"`
}

// DefaultBodyAttributes returns the default body used by RegisterAgent when
// none is supplied.
func DefaultBodyAttributes() BodyAttributes {
	return BodyAttributes{
		MassKg:         70,
		RadiusCm:       40,
		ThrustN:        0,
		CrossSectionM2: 0.5,
		HeightCm:       175,
		ExpansionSlots: 4,
	}
}

// PowerState is the enumerated power state of an agent.
type PowerState string

const (
	PowerOnline  PowerState = "online"
	PowerStandby PowerState = "standby"
	PowerOffline PowerState = "offline"
)

// Power holds an agent's power level and state.
type Power struct {
	Level float64    `cbor:"level"`
	State PowerState  `cbor:"state"`
}

// Thermal holds an agent's thermal state.
type Thermal struct {
	TemperatureC float64 `cbor:"temperature_c"`
}

// Kinematics holds an agent's movement state.
type Kinematics struct {
	SpeedCmPerTick int64       `cbor:"speed_cm_per_tick"`
	MoveTarget     *LocationID `cbor:"move_target,omitempty"`
	ETATick        *int64      `cbor:"eta_tick,omitempty"`
}

// Agent is the invariant-bearing per-agent world state (§3.2).
type Agent struct {
	ID         AgentID        `cbor:"id"`
	LocationID LocationID     `cbor:"location_id"`
	Pos        GeoPos         `cbor:"pos"`
	Body       BodyAttributes `cbor:"body"`
	Resources  ResourceStocks `cbor:"resources"`
	Power      Power          `cbor:"power"`
	Thermal    Thermal        `cbor:"thermal"`
	Kinematics Kinematics     `cbor:"kinematics"`
	// Cargo maps an entity id (agent, facility, artifact) to a carried
	// quantity ledger.
	Cargo            map[string]int64    `cbor:"cargo"`
	ModuleRefs       []ModuleID          `cbor:"module_refs"`
	// DataAccessGrants is keyed by grantee AgentID; true means this agent (the
	// source/owner) currently grants that agent access to pull Data via
	// EmitResourceTransfer.
	DataAccessGrants map[AgentID]bool `cbor:"data_access_grants"`
}

// NewAgent constructs a freshly registered agent with default attributes.
func NewAgent(id AgentID, locationID LocationID, pos GeoPos) *Agent {
	return &Agent{
		ID:               id,
		LocationID:       locationID,
		Pos:              pos,
		Body:             DefaultBodyAttributes(),
		Resources:        ResourceStocks{},
		Power:            Power{Level: 100, State: PowerOnline},
		Cargo:            map[string]int64{},
		DataAccessGrants: map[AgentID]bool{},
	}
}

// Clone returns a deep-enough copy of Agent for snapshotting.
func (a *Agent) Clone() *Agent {
	cp := *a
	cp.Resources = a.Resources.Clone()
	cp.Cargo = make(map[string]int64, len(a.Cargo))
	for k, v := range a.Cargo {
		cp.Cargo[k] = v
	}
	cp.DataAccessGrants = make(map[AgentID]bool, len(a.DataAccessGrants))
	for k, v := range a.DataAccessGrants {
		cp.DataAccessGrants[k] = v
	}
	cp.ModuleRefs = append([]ModuleID(nil), a.ModuleRefs...)
	return &cp
}

// HasGranted reports whether this agent (as source/owner) currently grants
// data access to grantee.
func (a *Agent) HasGranted(grantee AgentID) bool {
	return a.DataAccessGrants[grantee]
}
