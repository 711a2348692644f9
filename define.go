package magiclink

// Attempt is one entry of the identity pipeline's session history.
type Attempt struct {
	ChallengeName     string `json:"challengeName"`
	ChallengeResult   bool   `json:"challengeResult"`
	ChallengeMetadata string `json:"challengeMetadata,omitempty"`
}

// State is the position of a sign-in flow in the challenge state machine.
type State int

const (
	StateNoChallengeIssued State = iota
	StateChallengeInProgress
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNoChallengeIssued:
		return "NO_CHALLENGE_ISSUED"
	case StateChallengeInProgress:
		return "CHALLENGE_IN_PROGRESS"
	case StateSucceeded:
		return "SUCCEEDED"
	case StateFailed:
		return "FAILED"
	}
	return "UNKNOWN"
}

// Decision is the instruction returned to the identity pipeline.
// ChallengeName is only set when another challenge round is requested.
type Decision struct {
	IssueTokens        bool   `json:"issueTokens"`
	FailAuthentication bool   `json:"failAuthentication"`
	ChallengeName      string `json:"challengeName,omitempty"`
}

// DeriveState classifies the session history. A session containing nil
// entries is malformed and treated as empty.
func DeriveState(session []*Attempt, ceiling int) State {
	if ceiling <= 0 {
		ceiling = DefaultRetryCeiling
	}
	if malformed(session) {
		return StateNoChallengeIssued
	}
	last := session[len(session)-1]
	if last.ChallengeName == CustomChallenge && last.ChallengeResult {
		return StateSucceeded
	}
	if len(session) >= ceiling {
		return StateFailed
	}
	return StateChallengeInProgress
}

// Define maps the session history to the pipeline's next step. It has no
// side effects.
func Define(session []*Attempt, ceiling int) Decision {
	switch DeriveState(session, ceiling) {
	case StateSucceeded:
		return Decision{IssueTokens: true}
	case StateFailed:
		return Decision{FailAuthentication: true}
	default:
		return Decision{ChallengeName: CustomChallenge}
	}
}

func malformed(session []*Attempt) bool {
	if len(session) == 0 {
		return true
	}
	for _, a := range session {
		if a == nil {
			return true
		}
	}
	return false
}
