package economy

// XP costs per credit-consuming action.
const (
	CostMessage           = 2   // one companion reply, direct or group
	CostBehaviorGenerate  = 15  // LLM-generated persona description
	CostVote              = 25  // community idea vote
	CostIdeaSubmission    = 50  // community idea submission
	CostGroupChatCreation = 50  // new group chat
	CostCompanionCreation = 100 // new companion
)

// StartingGrant is the XP balance a new account opens with.
const StartingGrant = 100

// XPPerBotMessage is the XP a companion earns per reply it produces.
const XPPerBotMessage = 2
