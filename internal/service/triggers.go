package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"templeops/internal/config"
	"templeops/internal/model"
)

// Rule turns an inbound payload into a TaskInput. Rules must not touch
// storage; now is passed in so they stay pure.
type Rule func(payload []byte, def config.TriggerDefault, now time.Time) (TaskInput, error)

// Registry maps source modules to their task-creation rules.
type Registry struct {
	mu       sync.RWMutex
	rules    map[model.SourceModule]Rule
	defaults config.TriggerDefaults
}

func NewRegistry(defaults config.TriggerDefaults) *Registry {
	if defaults == nil {
		defaults = config.BuiltinTriggerDefaults()
	}
	return &Registry{
		rules:    make(map[model.SourceModule]Rule),
		defaults: defaults,
	}
}

// NewDefaultRegistry returns a registry with the built-in rules for the
// freelancer, inventory, volunteer and event modules.
func NewDefaultRegistry(defaults config.TriggerDefaults) *Registry {
	r := NewRegistry(defaults)
	r.Register(model.SourceFreelancer, FreelancerAssignmentRule)
	r.Register(model.SourceInventory, StockShortfallRule)
	r.Register(model.SourceVolunteer, VolunteerAllocationRule)
	r.Register(model.SourceEvent, EventChecklistRule)
	return r
}

func (r *Registry) Register(source model.SourceModule, rule Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules[source] = rule
}

func (r *Registry) Sources() []model.SourceModule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.SourceModule, 0, len(r.rules))
	for src := range r.rules {
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Resolve runs the rule registered for source.
func (r *Registry) Resolve(source model.SourceModule, payload []byte, now time.Time) (TaskInput, error) {
	r.mu.RLock()
	rule, ok := r.rules[source]
	def := r.defaults[source]
	r.mu.RUnlock()
	if !ok {
		return TaskInput{}, invalid("source_module", "no trigger rule for %q", source)
	}
	in, err := rule(payload, def, now)
	if err != nil {
		return TaskInput{}, err
	}
	in.SourceModule = source
	return in, nil
}

// Ingestor is the inbound trigger contract: resolve the rule, then create
// the task.
type Ingestor struct {
	registry *Registry
	tasks    *TaskManager
}

func NewIngestor(registry *Registry, tasks *TaskManager) *Ingestor {
	return &Ingestor{registry: registry, tasks: tasks}
}

func (i *Ingestor) Ingest(ctx context.Context, source model.SourceModule, payload []byte) (*model.Task, error) {
	in, err := i.registry.Resolve(source, payload, i.tasks.now())
	if err != nil {
		return nil, err
	}
	return i.tasks.CreateTask(ctx, in)
}

var payloadValidator = newPayloadValidator()

func newPayloadValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodePayload strictly decodes and validates a trigger payload.
func decodePayload(raw []byte, dst interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return invalid("payload", "%v", err)
	}
	if err := payloadValidator.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return invalid(fe.Field(), "failed %s validation", describeTag(fe))
		}
		return invalid("payload", "%v", err)
	}
	return nil
}

func describeTag(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fmt.Sprintf("%s=%s", fe.Tag(), fe.Param())
}

// Overrides lets a producer raise or lower the configured priority.
type Overrides struct {
	Priority string `json:"priority,omitempty" validate:"omitempty,oneof=low medium high critical 1 2 3 4"`
}

func (o Overrides) priority(def model.Priority) model.Priority {
	if o.Priority == "" {
		return def
	}
	p, err := model.ParsePriority(o.Priority)
	if err != nil {
		return def
	}
	return p
}

type FreelancerAssignmentPayload struct {
	AssignmentID string    `json:"assignment_id" validate:"required"`
	FreelancerID string    `json:"freelancer_id" validate:"required"`
	Service      string    `json:"service" validate:"required"`
	Coordinator  string    `json:"coordinator" validate:"required"`
	AssignedBy   string    `json:"assigned_by" validate:"required"`
	StartsAt     time.Time `json:"starts_at" validate:"required"`
	Overrides
}

// FreelancerAssignmentRule asks the coordinator to confirm a freelancer
// the configured lead time before the engagement starts.
func FreelancerAssignmentRule(payload []byte, def config.TriggerDefault, now time.Time) (TaskInput, error) {
	var p FreelancerAssignmentPayload
	if err := decodePayload(payload, &p); err != nil {
		return TaskInput{}, err
	}
	due := p.StartsAt.Add(-def.LeadTime)
	if due.Before(now) {
		due = p.StartsAt
	}
	scope := def.Visibility
	key := "freelancer:" + p.AssignmentID
	return TaskInput{
		Title:          fmt.Sprintf("Confirm %s with freelancer %s", p.Service, p.FreelancerID),
		Description:    fmt.Sprintf("Assignment %s starts %s", p.AssignmentID, p.StartsAt.UTC().Format(time.RFC3339)),
		LinkedEntityID: &p.AssignmentID,
		AssignedTo:     p.Coordinator,
		AssignedBy:     p.AssignedBy,
		DueAt:          due,
		Priority:       p.Overrides.priority(def.Priority),
		Visibility:     &scope,
		IdempotencyKey: &key,
	}, nil
}

type StockShortfallPayload struct {
	ItemID       string     `json:"item_id" validate:"required"`
	ItemName     string     `json:"item_name" validate:"required"`
	OnHand       int        `json:"on_hand" validate:"gte=0"`
	ReorderLevel int        `json:"reorder_level" validate:"gtfield=OnHand"`
	Unit         string     `json:"unit"`
	StoreKeeper  string     `json:"store_keeper" validate:"required"`
	ReportedBy   string     `json:"reported_by" validate:"required"`
	PurchaseID   string     `json:"purchase_order_id"`
	DetectedAt   *time.Time `json:"detected_at"`
	Overrides
}

// StockShortfallRule asks the store keeper to restock an item that fell
// below its reorder level.
func StockShortfallRule(payload []byte, def config.TriggerDefault, now time.Time) (TaskInput, error) {
	var p StockShortfallPayload
	if err := decodePayload(payload, &p); err != nil {
		return TaskInput{}, err
	}
	detected := now
	if p.DetectedAt != nil {
		detected = *p.DetectedAt
	}
	linked := p.ItemID
	if p.PurchaseID != "" {
		linked = p.PurchaseID
	}
	scope := def.Visibility
	key := fmt.Sprintf("inventory:%s@%s", p.ItemID, detected.UTC().Format(time.RFC3339))
	return TaskInput{
		Title: fmt.Sprintf("Restock %s", p.ItemName),
		Description: strings.TrimSpace(fmt.Sprintf("%d %s on hand, reorder level %d",
			p.OnHand, p.Unit, p.ReorderLevel)),
		LinkedEntityID: &linked,
		AssignedTo:     p.StoreKeeper,
		AssignedBy:     p.ReportedBy,
		DueAt:          detected.Add(def.LeadTime),
		Priority:       p.Overrides.priority(def.Priority),
		Visibility:     &scope,
		IdempotencyKey: &key,
	}, nil
}

type VolunteerAllocationPayload struct {
	AllocationID string    `json:"allocation_id" validate:"required"`
	VolunteerID  string    `json:"volunteer_id" validate:"required"`
	Duty         string    `json:"duty" validate:"required"`
	ShiftStart   time.Time `json:"shift_start" validate:"required"`
	ShiftEnd     time.Time `json:"shift_end" validate:"required,gtfield=ShiftStart"`
	AllocatedBy  string    `json:"allocated_by" validate:"required"`
	EventID      string    `json:"event_id" validate:"omitempty,uuid"`
	Overrides
}

// VolunteerAllocationRule gives the volunteer a task for their shift. It is
// linked to the event when one is named so event completion can see it.
func VolunteerAllocationRule(payload []byte, def config.TriggerDefault, now time.Time) (TaskInput, error) {
	var p VolunteerAllocationPayload
	if err := decodePayload(payload, &p); err != nil {
		return TaskInput{}, err
	}
	linked := p.AllocationID
	if p.EventID != "" {
		linked = p.EventID
	}
	scope := def.Visibility
	key := "volunteer:" + p.AllocationID
	return TaskInput{
		Title: fmt.Sprintf("%s shift", p.Duty),
		Description: fmt.Sprintf("%s to %s",
			p.ShiftStart.UTC().Format(time.RFC3339), p.ShiftEnd.UTC().Format(time.RFC3339)),
		LinkedEntityID: &linked,
		AssignedTo:     p.VolunteerID,
		AssignedBy:     p.AllocatedBy,
		DueAt:          p.ShiftStart.Add(-def.LeadTime),
		Priority:       p.Overrides.priority(def.Priority),
		Visibility:     &scope,
		IdempotencyKey: &key,
	}, nil
}

type EventChecklistPayload struct {
	EventID     string     `json:"event_id" validate:"required,uuid"`
	ItemID      string     `json:"item_id" validate:"required"`
	Item        string     `json:"item" validate:"required"`
	Owner       string     `json:"owner" validate:"required"`
	RequestedBy string     `json:"requested_by" validate:"required"`
	DueAt       *time.Time `json:"due_at"`
	// Conflict marks a checklist item that clashes with another booking,
	// such as two sevas in the same slot. It blocks publishing until done.
	Conflict bool   `json:"conflict"`
	Note     string `json:"note"`
	Overrides
}

// EventChecklistRule turns an event-detail checklist item into a task
// linked to the event.
func EventChecklistRule(payload []byte, def config.TriggerDefault, now time.Time) (TaskInput, error) {
	var p EventChecklistPayload
	if err := decodePayload(payload, &p); err != nil {
		return TaskInput{}, err
	}
	due := now.Add(def.LeadTime)
	if p.DueAt != nil {
		due = *p.DueAt
	}
	scope := def.Visibility
	key := fmt.Sprintf("event:%s/%s", p.EventID, p.ItemID)
	return TaskInput{
		Title:          p.Item,
		Description:    p.Note,
		LinkedEntityID: &p.EventID,
		AssignedTo:     p.Owner,
		AssignedBy:     p.RequestedBy,
		DueAt:          due,
		Priority:       p.Overrides.priority(def.Priority),
		Visibility:     &scope,
		Conflict:       p.Conflict,
		IdempotencyKey: &key,
	}, nil
}
