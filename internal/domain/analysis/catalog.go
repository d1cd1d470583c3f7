package analysis

import (
	"fmt"
	"strings"

	"github.com/bryanwahyu/mediscan/internal/domain/media"
)

// CustomTypeID selects the free-form prompt entry.
const CustomTypeID = "custom"

// TypeDescriptor is one supported analysis domain.
type TypeDescriptor struct {
	ID     string       `json:"id"`
	Label  string       `json:"label"`
	Icon   string       `json:"icon"`
	Color  string       `json:"color"`
	Prompt string       `json:"prompt,omitempty"`
	Kinds  []media.Kind `json:"kinds"`
}

// Custom reports whether the prompt comes from the user.
func (d TypeDescriptor) Custom() bool { return d.ID == CustomTypeID }

// Supports reports whether the descriptor applies to kind.
func (d TypeDescriptor) Supports(kind media.Kind) bool {
	for _, k := range d.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Catalog is an immutable, ordered registry of analysis types.
type Catalog struct {
	order []string
	byID  map[string]TypeDescriptor
}

// NewCatalog builds a catalog; ids must be unique and non-empty.
func NewCatalog(types ...TypeDescriptor) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]TypeDescriptor, len(types))}
	for _, t := range types {
		if t.ID == "" {
			return nil, fmt.Errorf("analysis type without id (label %q)", t.Label)
		}
		if _, dup := c.byID[t.ID]; dup {
			return nil, fmt.Errorf("duplicate analysis type %q", t.ID)
		}
		t.Kinds = append([]media.Kind(nil), t.Kinds...)
		c.byID[t.ID] = t
		c.order = append(c.order, t.ID)
	}
	return c, nil
}

// Get looks up a descriptor by id.
func (c *Catalog) Get(id string) (TypeDescriptor, bool) {
	t, ok := c.byID[id]
	return t, ok
}

// List returns the descriptors usable for kind, in registration order.
// An empty kind lists everything.
func (c *Catalog) List(kind media.Kind) []TypeDescriptor {
	out := make([]TypeDescriptor, 0, len(c.order))
	for _, id := range c.order {
		t := c.byID[id]
		if kind == "" || t.Supports(kind) {
			out = append(out, t)
		}
	}
	return out
}

// Resolve turns a type id plus optional user prompt into the Request sent
// downstream. The custom entry requires a non-blank prompt; fixed entries
// ignore the user prompt.
func (c *Catalog) Resolve(id, userPrompt string, kind media.Kind) (Request, error) {
	t, ok := c.Get(id)
	if !ok {
		return Request{}, fmt.Errorf("%w: %q", ErrUnknownType, id)
	}
	if kind != "" && !t.Supports(kind) {
		return Request{}, fmt.Errorf("%w: %q does not apply to %s", ErrUnknownType, id, kind)
	}
	if t.Custom() {
		p := strings.TrimSpace(userPrompt)
		if p == "" {
			return Request{TypeID: id}, nil
		}
		return Request{TypeID: id, Prompt: p}, nil
	}
	return Request{TypeID: id, Prompt: t.Prompt}, nil
}

var both = []media.Kind{media.KindImage, media.KindVideo}

// DefaultCatalog returns the built-in analysis domains.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(defaultTypes...)
	if err != nil {
		panic(err)
	}
	return c
}

var defaultTypes = []TypeDescriptor{
	{
		ID: "ecg", Label: "ECG Video Analysis", Icon: "pulse-outline", Color: "#EF4444",
		Kinds:  []media.Kind{media.KindVideo},
		Prompt: "Analyze this ECG video for any abnormalities in heart rhythm, conduction, or electrical activity. Focus on identifying potential arrhythmias, conduction blocks, or other cardiac abnormalities. Provide detailed findings with confidence levels in user-friendly language.",
	},
	{
		ID: "ultrasound", Label: "Ultrasound Video", Icon: "radio-outline", Color: "#3B82F6",
		Kinds:  []media.Kind{media.KindVideo},
		Prompt: "You are an expert sonographer. Analyze this ultrasound video to identify any anatomical abnormalities, organ irregularities, or pathological findings. Provide a detailed report with measurements if visible and confidence scores in user-friendly language.",
	},
	{
		ID: "endoscopy", Label: "Endoscopy Video", Icon: "eye-outline", Color: "#10B981",
		Kinds:  []media.Kind{media.KindVideo},
		Prompt: "You are an expert gastroenterologist. Analyze this endoscopy video to identify any mucosal abnormalities, lesions, polyps, or signs of inflammation. Provide detailed findings with location specificity and confidence levels in user-friendly language.",
	},
	{
		ID: "xray_cine", Label: "Dynamic X-Ray", Icon: "film-outline", Color: "#F59E0B",
		Kinds:  []media.Kind{media.KindVideo},
		Prompt: "You are an expert radiologist. Analyze this dynamic X-ray/fluoroscopy video to assess organ movement, contrast flow, or functional abnormalities. Provide detailed temporal analysis with confidence scores in user-friendly language.",
	},
	{
		ID: "dermoscopy", Label: "Dermoscopy Video", Icon: "scan-circle-outline", Color: "#EC4899",
		Kinds:  []media.Kind{media.KindVideo},
		Prompt: "You are an expert dermatologist. Analyze this dermoscopy video of skin lesions to identify potential malignancies, color variations, or structural abnormalities. Provide detailed morphological analysis with confidence levels in user-friendly language.",
	},
	{
		ID: "ophthalmology", Label: "Eye Examination", Icon: "eye-outline", Color: "#8B5CF6",
		Kinds:  []media.Kind{media.KindVideo},
		Prompt: "You are an expert ophthalmologist. Analyze this eye examination video to identify retinal abnormalities, vascular changes, or signs of eye diseases. Provide detailed findings with anatomical locations and confidence scores in user-friendly language.",
	},
	{
		ID: "xray", Label: "X-Ray Image", Icon: "body-outline", Color: "#F59E0B",
		Kinds:  []media.Kind{media.KindImage},
		Prompt: "You are an expert radiologist. Analyze this X-ray image for fractures, opacities, masses, or other abnormalities. Provide detailed findings with anatomical locations and confidence levels in user-friendly language.",
	},
	{
		ID: "skin", Label: "Skin Lesion Photo", Icon: "scan-circle-outline", Color: "#EC4899",
		Kinds:  []media.Kind{media.KindImage},
		Prompt: "You are an expert dermatologist. Analyze this photo of a skin lesion for asymmetry, border irregularity, color variation, and other warning signs. Provide detailed morphological findings with confidence levels in user-friendly language.",
	},
	{
		ID: "fundus", Label: "Retinal Image", Icon: "eye-outline", Color: "#8B5CF6",
		Kinds:  []media.Kind{media.KindImage},
		Prompt: "You are an expert ophthalmologist. Analyze this retinal fundus image for hemorrhages, exudates, optic disc changes, or vascular abnormalities. Provide detailed findings with confidence levels in user-friendly language.",
	},
	{
		ID: CustomTypeID, Label: "Medical Analysis", Icon: "create-outline", Color: "#1E90FF",
		Kinds: both,
	},
}
