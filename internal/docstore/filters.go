package docstore

import (
	"go.mongodb.org/mongo-driver/bson"

	"github.com/pharmatrace-server/internal/domain"
)

// trialConditionFilter selects trials in the given statuses whose title or any required
// condition matches the pattern case-insensitively.
func trialConditionFilter(q domain.TrialQuery) bson.M {
	regex := bson.M{"$regex": q.Pattern, "$options": "i"}
	filter := bson.M{
		"$or": bson.A{
			bson.M{"title": regex},
			bson.M{"eligibility_criteria.required_conditions": regex},
		},
	}
	if len(q.Statuses) > 0 {
		filter["status"] = bson.M{"$in": statusValues(q.Statuses)}
	}
	return filter
}

func trialStatusFilter(statuses []domain.TrialStatus) bson.M {
	if len(statuses) == 0 {
		return bson.M{}
	}
	return bson.M{"status": bson.M{"$in": statusValues(statuses)}}
}

func statusValues(statuses []domain.TrialStatus) bson.A {
	out := make(bson.A, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}

// matchFilter selects match records for the trials at or above the score floor.
func matchFilter(q domain.MatchQuery) bson.M {
	filter := bson.M{"trial_id": bson.M{"$in": q.TrialIDs}}
	if q.MinScore > 0 {
		filter["match_score"] = bson.M{"$gte": q.MinScore}
	}
	return filter
}

// matchSort orders by score descending with a total tie-break.
func matchSort() bson.D {
	return bson.D{
		{Key: "match_score", Value: -1},
		{Key: "user_id", Value: 1},
		{Key: "trial_id", Value: 1},
	}
}

func matchKeyFilter(userID, trialID string) bson.M {
	return bson.M{"user_id": userID, "trial_id": trialID}
}
