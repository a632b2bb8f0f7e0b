package domain

// EntityType enumerates the kinds of nodes the knowledge graph stores.
type EntityType string

const (
	EntityTypeHome       EntityType = "home"
	EntityTypeRoom       EntityType = "room"
	EntityTypeDevice     EntityType = "device"
	EntityTypeZone       EntityType = "zone"
	EntityTypeDoor       EntityType = "door"
	EntityTypeWindow     EntityType = "window"
	EntityTypeProcedure  EntityType = "procedure"
	EntityTypeManual     EntityType = "manual"
	EntityTypeNote       EntityType = "note"
	EntityTypeSchedule   EntityType = "schedule"
	EntityTypeAutomation EntityType = "automation"
	EntityTypeAccessory  EntityType = "accessory"
	EntityTypeService    EntityType = "service"
	EntityTypeUser       EntityType = "user"
	EntityTypeApp        EntityType = "app"
)

var entityTypes = map[EntityType]struct{}{
	EntityTypeHome:       {},
	EntityTypeRoom:       {},
	EntityTypeDevice:     {},
	EntityTypeZone:       {},
	EntityTypeDoor:       {},
	EntityTypeWindow:     {},
	EntityTypeProcedure:  {},
	EntityTypeManual:     {},
	EntityTypeNote:       {},
	EntityTypeSchedule:   {},
	EntityTypeAutomation: {},
	EntityTypeAccessory:  {},
	EntityTypeService:    {},
	EntityTypeUser:       {},
	EntityTypeApp:        {},
}

// Valid reports whether the entity type is part of the fixed enumeration.
func (t EntityType) Valid() bool {
	_, ok := entityTypes[t]
	return ok
}

// RelationshipType enumerates the kinds of directed edges between entities.
type RelationshipType string

const (
	RelationshipLocatedIn    RelationshipType = "located_in"
	RelationshipControls     RelationshipType = "controls"
	RelationshipConnectsTo   RelationshipType = "connects_to"
	RelationshipPartOf       RelationshipType = "part_of"
	RelationshipManages      RelationshipType = "manages"
	RelationshipDocumentedBy RelationshipType = "documented_by"
	RelationshipProcedureFor RelationshipType = "procedure_for"
	RelationshipTriggeredBy  RelationshipType = "triggered_by"
	RelationshipDependsOn    RelationshipType = "depends_on"
)

var relationshipTypes = map[RelationshipType]struct{}{
	RelationshipLocatedIn:    {},
	RelationshipControls:     {},
	RelationshipConnectsTo:   {},
	RelationshipPartOf:       {},
	RelationshipManages:      {},
	RelationshipDocumentedBy: {},
	RelationshipProcedureFor: {},
	RelationshipTriggeredBy:  {},
	RelationshipDependsOn:    {},
}

// Valid reports whether the relationship type is part of the fixed enumeration.
func (t RelationshipType) Valid() bool {
	_, ok := relationshipTypes[t]
	return ok
}

// Bidirectional reports whether edges of this type are traversable in both
// directions during path finding. A connects_to edge between two rooms means
// you can walk either way even though the row stores a single direction.
func (t RelationshipType) Bidirectional() bool {
	return t == RelationshipConnectsTo
}

// SourceType records the provenance of an entity version.
type SourceType string

const (
	SourceManual    SourceType = "manual"
	SourceImported  SourceType = "imported"
	SourceGenerated SourceType = "generated"
	SourceHomeKit   SourceType = "homekit"
	SourceMatter    SourceType = "matter"
)

var sourceTypes = map[SourceType]struct{}{
	SourceManual:    {},
	SourceImported:  {},
	SourceGenerated: {},
	SourceHomeKit:   {},
	SourceMatter:    {},
}

// Valid reports whether the source type is part of the fixed enumeration.
func (t SourceType) Valid() bool {
	_, ok := sourceTypes[t]
	return ok
}
