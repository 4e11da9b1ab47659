package pipeline

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// defaultClassCount is the number of classes in the unified detector schema.
const defaultClassCount = 3

// LabelSource produces an ordered class-index-to-name mapping. Sources are
// consulted in priority order; an empty result defers to the next source.
type LabelSource interface {
	Labels() ([]string, error)
}

// LabelSourceFunc adapts a function to the LabelSource interface.
type LabelSourceFunc func() ([]string, error)

// Labels implements the LabelSource interface.
func (f LabelSourceFunc) Labels() ([]string, error) { return f() }

// ModelMetadataLabels returns a source backed by labels the detector model
// reported about itself.
func ModelMetadataLabels(names []string) LabelSource {
	return LabelSourceFunc(func() ([]string, error) { return names, nil })
}

// BundledFileLabels returns a source that reads a YAML label file shipped
// with the app. Expected layout:
//
//	names:
//	  - credit_card
//	  - id_card
//	  - passport
func BundledFileLabels(path string) LabelSource {
	return LabelSourceFunc(func() ([]string, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read label file: %w", err)
		}

		var doc struct {
			Names []string `yaml:"names"`
		}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse label file: %w", err)
		}
		return doc.Names, nil
	})
}

// SynthesizedLabels returns a source that generates placeholder names
// (class_0, class_1, ...). It never fails, guaranteeing the chain always
// resolves to some name.
func SynthesizedLabels(count int) LabelSource {
	return LabelSourceFunc(func() ([]string, error) {
		names := make([]string, count)
		for i := range names {
			names[i] = fmt.Sprintf("class_%d", i)
		}
		return names, nil
	})
}

// LabelResolver resolves detector class indices to label names through an
// ordered chain of sources: first source yielding a non-empty mapping wins.
// Sources that error are skipped. Indices outside the resolved mapping fall
// back to synthesized names so resolution is total.
type LabelResolver struct {
	names []string
}

// NewLabelResolver builds a resolver from the given sources in priority
// order.
func NewLabelResolver(sources ...LabelSource) *LabelResolver {
	for _, src := range sources {
		names, err := src.Labels()
		if err != nil || len(names) == 0 {
			continue
		}
		return &LabelResolver{names: names}
	}
	return &LabelResolver{}
}

// Name returns the label for a class index. Out-of-range indices synthesize
// a placeholder so a name is always produced.
func (r *LabelResolver) Name(index int) string {
	if index >= 0 && index < len(r.names) {
		return r.names[index]
	}
	return fmt.Sprintf("class_%d", index)
}

// Count returns the number of resolved class names.
func (r *LabelResolver) Count() int { return len(r.names) }
