// Package category defines the closed set of notification categories tracked
// by the agent console and the per-category descriptors used to drive socket
// event dispatch, upstream API paths, and UI rendering.
package category

import "strings"

// Category identifies one of the fixed entity types tracked by the console.
type Category string

const (
	Agents              Category = "agents"
	Customers           Category = "customers"
	Properties          Category = "properties"
	RequestedProperties Category = "requestedProperties"
	Skilled             Category = "skilled"
	Investors           Category = "investors"
	ExpertRequests      Category = "expertRequests"
	ExpertRegistrations Category = "expertRegistrations"
	ExpertCallRequests  Category = "expertCallRequests"
)

// EventAssignedByOther is broadcast by the backend when another call-center
// agent claims an item. Its payload carries a type token and the item id.
const EventAssignedByOther = "assigned_by_other"

// Descriptor holds the per-category metadata that replaces the per-category
// branching found in notification dashboards.
type Descriptor struct {
	Category Category

	// Label is the human-readable name shown in the UI.
	Label string

	// Event is the upstream socket event announcing a new item.
	Event string

	// PayloadField is the key under which the item record travels in the
	// socket event payload.
	PayloadField string

	// APIType is the path token used by the upstream accept/reject and
	// per-category pending-items endpoints.
	APIType string

	// NavigationTarget is the UI route the front-end opens after an accept.
	NavigationTarget string
}

var descriptors = []Descriptor{
	{Agents, "Agents", "new_agent", "agent", "agent", "/agents"},
	{Customers, "Customers", "new_customer", "customer", "customer", "/customers"},
	{Properties, "Properties", "new_property", "property", "property", "/properties"},
	{RequestedProperties, "Requested Properties", "new_requested_property", "property", "requested-property", "/requested-properties"},
	{Skilled, "Skilled Labor", "new_skilled_labor", "labor", "skilled-labor", "/skilled-labor"},
	{Investors, "Investors", "new_investor", "investor", "investor", "/investors"},
	{ExpertRequests, "Expert Requests", "new_requestExpert", "expert", "expert-request", "/expert-requests"},
	{ExpertRegistrations, "Expert Registrations", "new_Expert", "expert", "expert-registration", "/expert-registrations"},
	{ExpertCallRequests, "Expert Call Requests", "new_requestedExpert", "expert", "expert-call-request", "/expert-call-requests"},
}

var (
	byCategory = make(map[Category]Descriptor, len(descriptors))
	byEvent    = make(map[string]Descriptor, len(descriptors))
	byAPIType  = make(map[string]Descriptor, len(descriptors))
)

func init() {
	for _, d := range descriptors {
		byCategory[d.Category] = d
		byEvent[d.Event] = d
		byAPIType[d.APIType] = d
	}
}

// All returns the descriptors in their fixed declaration order.
func All() []Descriptor {
	out := make([]Descriptor, len(descriptors))
	copy(out, descriptors)
	return out
}

// Categories returns every category in declaration order.
func Categories() []Category {
	out := make([]Category, len(descriptors))
	for i, d := range descriptors {
		out[i] = d.Category
	}
	return out
}

// Lookup resolves a descriptor by category key.
func Lookup(c Category) (Descriptor, bool) {
	d, ok := byCategory[c]
	return d, ok
}

// ByEvent resolves a descriptor by upstream socket event name.
func ByEvent(event string) (Descriptor, bool) {
	d, ok := byEvent[event]
	return d, ok
}

// Parse resolves a category from either its key or its upstream API type
// token. assigned_by_other payloads use the API type, local UI requests use
// the key, so both spellings are accepted.
func Parse(value string) (Category, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	if d, ok := byCategory[Category(value)]; ok {
		return d.Category, true
	}
	if d, ok := byAPIType[value]; ok {
		return d.Category, true
	}
	return "", false
}

// Valid reports whether c belongs to the closed category set.
func Valid(c Category) bool {
	_, ok := byCategory[c]
	return ok
}
