package domain

// Event is a server-to-client push message. The concrete types mirror the wire
// vocabulary the frontend speaks: every payload carries a "type" discriminator,
// set by the constructor.
type Event interface {
	EventType() string
}

// NewPlayerEvent announces a join to the whole round with the full member list.
type NewPlayerEvent struct {
	Type  string   `json:"type"`
	Users []string `json:"users"`
}

func NewPlayer(users []string) NewPlayerEvent {
	return NewPlayerEvent{Type: "newPlayer", Users: users}
}

func (e NewPlayerEvent) EventType() string { return e.Type }

// NewQuestionEvent announces a submitted question with the updated counts.
type NewQuestionEvent struct {
	Type         string `json:"type"`
	Question     string `json:"question"`
	NumQuestions int64  `json:"numQuestions"`
	NumPlayers   int64  `json:"numPlayers"`
}

func NewQuestion(question string, numQuestions, numPlayers int64) NewQuestionEvent {
	return NewQuestionEvent{Type: "newQuestion", Question: question, NumQuestions: numQuestions, NumPlayers: numPlayers}
}

func (e NewQuestionEvent) EventType() string { return e.Type }

// StartErrorEvent goes to the requester only when the member/question counts do
// not match yet. WaitingFor is the deficit.
type StartErrorEvent struct {
	Type       string `json:"type"`
	WaitingFor int64  `json:"waitingFor"`
}

func StartError(waitingFor int64) StartErrorEvent {
	return StartErrorEvent{Type: "startError", WaitingFor: waitingFor}
}

func (e StartErrorEvent) EventType() string { return e.Type }

// NextAnswererEvent tells everyone except the answerer who is up next.
// Username is whoever triggered the assignment.
type NextAnswererEvent struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	Answerer string `json:"answerer"`
}

func NextAnswerer(username, answerer string) NextAnswererEvent {
	return NextAnswererEvent{Type: "nextAnswerer", Username: username, Answerer: answerer}
}

func (e NextAnswererEvent) EventType() string { return e.Type }

// PickQuestionEvent goes to the answerer only, carrying a sample of pending
// question ids to choose from.
type PickQuestionEvent struct {
	Type        string   `json:"type"`
	QuestionIDs []string `json:"questionIDs"`
}

func PickQuestion(questionIDs []string) PickQuestionEvent {
	return PickQuestionEvent{Type: "pickQuestion", QuestionIDs: questionIDs}
}

func (e PickQuestionEvent) EventType() string { return e.Type }

// QuestionRevealedEvent broadcasts a consumed question to the whole round.
type QuestionRevealedEvent struct {
	Type               string `json:"type"`
	Username           string `json:"username"`
	Question           string `json:"question"`
	QuestionsRemaining int64  `json:"questionsRemaining"`
}

func QuestionRevealed(username, question string, remaining int64) QuestionRevealedEvent {
	return QuestionRevealedEvent{Type: "question", Username: username, Question: question, QuestionsRemaining: remaining}
}

func (e QuestionRevealedEvent) EventType() string { return e.Type }

// PickAnswererEvent replies to the requester with the members who have not
// answered yet.
type PickAnswererEvent struct {
	Type    string   `json:"type"`
	Options []string `json:"options"`
}

func PickAnswerer(options []string) PickAnswererEvent {
	return PickAnswererEvent{Type: "pickAnswerer", Options: options}
}

func (e PickAnswererEvent) EventType() string { return e.Type }

// RoundEndEvent broadcasts the end of the round.
type RoundEndEvent struct {
	Type string `json:"type"`
}

func RoundEnd() RoundEndEvent {
	return RoundEndEvent{Type: "roundEnd"}
}

func (e RoundEndEvent) EventType() string { return e.Type }
