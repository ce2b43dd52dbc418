package portable

import (
	"fmt"
	"sort"
	"time"

	"github.com/stepline/stepline/pkg/models"
)

// ToPortable serializes a definition into the portable document shape. Local
// step identifiers are assigned in step order and referenced by connections
// and decision result actions.
func ToPortable(def *models.WorkflowDefinition) *Document {
	localIDs := make(map[string]string, len(def.Steps))
	for i, step := range def.Steps {
		localIDs[step.ID] = fmt.Sprintf("step-%d", i+1)
	}

	steps := make([]*Step, 0, len(def.Steps))

	var estimatedTotal time.Duration

	for _, step := range def.Steps {
		estimatedTotal += step.EstimatedDuration
		steps = append(steps, exportStep(step, localIDs))
	}

	connections := make([]*Connection, 0, len(def.Connections))

	for _, conn := range def.Connections {
		connections = append(connections, &Connection{
			SourceStep:     localIDs[conn.SourceStepID],
			TargetStep:     localIDs[conn.TargetStepID],
			ConnectionType: string(conn.Type),
			Condition:      conn.Condition.Clone(),
			IsDefault:      conn.IsDefault,
		})
	}

	outcomes := make([]*Outcome, 0, len(def.Outcomes))

	for _, outcome := range def.Outcomes {
		outcomes = append(outcomes, &Outcome{
			Name:            outcome.Name,
			Description:     outcome.Description,
			IsDefault:       outcome.IsDefault,
			SuccessCriteria: outcome.SuccessCriteria,
		})
	}

	return &Document{
		PresetInfo: PresetInfo{
			Name:          def.Name,
			Description:   def.Description,
			EstimatedTime: int64(estimatedTotal.Seconds()),
			Tags:          []string{},
		},
		Workflow: Workflow{
			Name:                def.Name,
			Description:         def.Description,
			HasMultipleOutcomes: def.HasMultipleOutcomes,
			Steps:               steps,
			Connections:         connections,
			Outcomes:            outcomes,
		},
		RequiredResources: collectResources(def),
		Metadata: Metadata{
			Version:    DocumentVersion,
			ExportedAt: time.Now().UTC(),
			OriginalID: def.ID,
		},
	}
}

func exportStep(step *models.Step, localIDs map[string]string) *Step {
	resources := make([]*Resource, 0, len(step.Resources))

	for _, r := range step.Resources {
		resources = append(resources, &Resource{
			ResourceType: string(r.Type),
			Reference:    r.Reference,
			Quantity:     r.Quantity,
			Unit:         r.Unit,
			IsOptional:   r.IsOptional,
			Notes:        r.Notes,
		})
	}

	var options []*DecisionOption

	for _, o := range step.DecisionOptions {
		option := &DecisionOption{
			OptionText:   o.Text,
			DisplayOrder: o.DisplayOrder,
			IsDefault:    o.IsDefault,
		}

		if o.ResultAction != nil {
			option.ResultAction = &ResultAction{
				Set:        o.ResultAction.Set,
				TargetStep: localIDs[o.ResultAction.TargetStepID],
			}
		}

		options = append(options, option)
	}

	return &Step{
		ID:                localIDs[step.ID],
		Name:              step.Name,
		Description:       step.Description,
		Instructions:      step.Instructions,
		DisplayOrder:      step.DisplayOrder,
		StepType:          string(step.Type),
		EstimatedDuration: int64(step.EstimatedDuration.Seconds()),
		IsMilestone:       step.IsMilestone,
		IsDecisionPoint:   step.IsDecisionPoint,
		IsOutcome:         step.IsOutcome,
		Resources:         resources,
		DecisionOptions:   options,
	}
}

func collectResources(def *models.WorkflowDefinition) RequiredResources {
	byType := map[models.ResourceType]map[string]bool{
		models.ResourceTypeMaterial:      {},
		models.ResourceTypeTool:          {},
		models.ResourceTypeDocumentation: {},
	}

	for _, step := range def.Steps {
		for _, r := range step.Resources {
			if refs, ok := byType[r.Type]; ok {
				refs[r.Reference] = true
			}
		}
	}

	return RequiredResources{
		Materials:     sortedKeys(byType[models.ResourceTypeMaterial]),
		Tools:         sortedKeys(byType[models.ResourceTypeTool]),
		Documentation: sortedKeys(byType[models.ResourceTypeDocumentation]),
	}
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
