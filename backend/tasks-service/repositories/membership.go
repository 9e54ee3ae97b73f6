package repositories

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"trello-project/backend/tasks-service/models"
)

// MembershipSource supplies the member ids an actor may see on dashboards.
type MembershipSource interface {
	TrustedMembers(ctx context.Context, actor models.Actor) ([]string, error)
}

// MongoMembership reads team membership from the projects collection:
// a leader sees the members of the projects they manage, admin, director
// and pmo see every project, staff see only themselves.
type MongoMembership struct {
	projects *mongo.Collection
}

func NewMongoMembership(projects *mongo.Collection) *MongoMembership {
	return &MongoMembership{projects: projects}
}

func (m *MongoMembership) TrustedMembers(ctx context.Context, actor models.Actor) ([]string, error) {
	members := []string{}
	if actor.MemberID != "" {
		members = append(members, actor.MemberID)
	}
	if !actor.IsManager() {
		return members, nil
	}

	filter := bson.M{}
	if actor.Role == models.RoleLeader {
		filter = bson.M{"manager_id": managerKey(actor.ID)}
	}

	cursor, err := m.projects.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to load projects: %w", err)
	}
	defer cursor.Close(ctx)

	var projects []struct {
		Members []bson.M `bson:"members"`
	}
	if err := cursor.All(ctx, &projects); err != nil {
		return nil, fmt.Errorf("failed to decode projects: %w", err)
	}

	seen := map[string]bool{actor.MemberID: true}
	for _, p := range projects {
		for _, member := range p.Members {
			id := idString(member["_id"])
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			members = append(members, id)
		}
	}
	return members, nil
}

// managerKey matches both ObjectID and plain string manager references.
func managerKey(id string) interface{} {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return bson.M{"$in": bson.A{oid, id}}
	}
	return id
}

func idString(v interface{}) string {
	switch id := v.(type) {
	case primitive.ObjectID:
		return id.Hex()
	case string:
		return id
	default:
		return ""
	}
}
