package service

import "github.com/kanbot-project/kanbot-sync-api/internal/models"

// ActorContext identifies who performed a mutation. It is resolved once per
// request: a session token yields a human actor, an automation API key an
// agent actor acting on behalf of the key's owner.
type ActorContext struct {
	UserID    string
	Username  string
	IsAgent   bool
	AgentName string
}

// NewUserActor builds a human actor context.
func NewUserActor(userID, username string) ActorContext {
	return ActorContext{UserID: userID, Username: username}
}

// NewAgentActor builds an automated actor context. An empty agentName falls
// back to "<ownerName>-bot".
func NewAgentActor(userID, username, agentName string) ActorContext {
	if agentName == "" {
		agentName = username + "-bot"
	}
	return ActorContext{UserID: userID, Username: username, IsAgent: true, AgentName: agentName}
}

// Type returns the actor type recorded on audit entries.
func (a ActorContext) Type() string {
	if a.IsAgent {
		return models.ActorTypeAgent
	}
	return models.ActorTypeUser
}

// DisplayName returns the name attributed to the actor's mutations.
func (a ActorContext) DisplayName() string {
	if a.IsAgent {
		return a.AgentName
	}
	return a.Username
}
