package docker

import (
	"fmt"
	"time"
)

// Label keys put on every container classlens creates. They are the only
// record of which containers belong to classlens: nothing is written to
// disk, so leftovers of interrupted runs are found by label.
const (
	// LabelPrefix is the common prefix for all classlens labels.
	LabelPrefix = "classlens."

	// LabelManagedBy marks containers created by classlens.
	// Key: "classlens.managed-by", Value: always ManagedByValue.
	LabelManagedBy = LabelPrefix + "managed-by"

	// LabelContainer stores the archive the decompiled class came from.
	LabelContainer = LabelPrefix + "container"

	// LabelClass stores the archive path of the decompiled class.
	LabelClass = LabelPrefix + "class"

	// LabelCreatedAt stores the RFC3339 creation time of the run.
	LabelCreatedAt = LabelPrefix + "created-at"
)

// ManagedByValue is the value of LabelManagedBy.
const ManagedByValue = "classlens"

// RunInfo is the metadata recorded in a run's labels.
type RunInfo struct {
	Container string
	Class     string
	CreatedAt time.Time
}

// BuildLabels returns the label map for a decompiler run.
func BuildLabels(info RunInfo) map[string]string {
	labels := map[string]string{
		LabelManagedBy: ManagedByValue,
		LabelCreatedAt: info.CreatedAt.UTC().Format(time.RFC3339),
	}
	if info.Container != "" {
		labels[LabelContainer] = info.Container
	}
	if info.Class != "" {
		labels[LabelClass] = info.Class
	}
	return labels
}

// ParseLabels reads RunInfo back from a container's labels. It fails when
// the container is not managed by classlens or the timestamp is malformed.
func ParseLabels(labels map[string]string) (RunInfo, error) {
	if labels[LabelManagedBy] != ManagedByValue {
		return RunInfo{}, fmt.Errorf("container is not managed by %s", ManagedByValue)
	}

	info := RunInfo{
		Container: labels[LabelContainer],
		Class:     labels[LabelClass],
	}
	if raw := labels[LabelCreatedAt]; raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return RunInfo{}, fmt.Errorf("invalid %s label %q: %w", LabelCreatedAt, raw, err)
		}
		info.CreatedAt = t
	}
	return info, nil
}
