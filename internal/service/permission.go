package service

import (
	"log"

	"github.com/echoself-ai/echoself/internal/domain"
)

// filterByGroups drops candidates the requester's groups are not entitled to
// see. Records without group restrictions are visible to everyone.
//
// A requester with no resolvable groups is a configuration gap, not a
// content gap, and the two must stay distinguishable in logs: owner-initiated
// requests proceed unfiltered with a distinct warning, anonymous requests
// fail closed.
func filterByGroups(contexts []*RetrievedContext, requesterGroups []string, ownerRequest bool, twinID string) ([]*RetrievedContext, *StageFailure) {
	if len(requesterGroups) == 0 {
		if ownerRequest {
			log.Printf("permission: no group context for owner request on twin %s, proceeding unfiltered", twinID)
			return contexts, &StageFailure{Stage: "permission", Class: domain.ErrCodeNoGroupContext}
		}
		log.Printf("permission: no group context for anonymous request on twin %s, failing closed", twinID)
		return []*RetrievedContext{}, &StageFailure{Stage: "permission", Class: domain.ErrCodeNoGroupContext}
	}

	allowed := make(map[string]struct{}, len(requesterGroups))
	for _, g := range requesterGroups {
		allowed[g] = struct{}{}
	}

	out := make([]*RetrievedContext, 0, len(contexts))
	for _, c := range contexts {
		if len(c.GroupIDs) == 0 {
			out = append(out, c)
			continue
		}
		for _, g := range c.GroupIDs {
			if _, ok := allowed[g]; ok {
				out = append(out, c)
				break
			}
		}
	}

	return out, nil
}
