package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/victornm/ehunt/internal/domain"
	"github.com/victornm/ehunt/internal/progression"
	"github.com/victornm/ehunt/internal/quiz"
)

type (
	Challenge struct {
		ID       string   `json:"id"`
		Prompt   string   `json:"prompt"`
		Options  []string `json:"options"`
		Points   int64    `json:"points"`
		ImageURL *string  `json:"imageUrl"`
	}

	Clue struct {
		Text     string  `json:"text"`
		ImageURL *string `json:"imageUrl"`
	}
)

func newChallenge(ch domain.Challenge) Challenge {
	opts := ch.Options
	if opts == nil {
		opts = []string{}
	}
	return Challenge{
		ID:       ch.ChallengeID,
		Prompt:   ch.Prompt,
		Options:  opts,
		Points:   ch.Points,
		ImageURL: optional(ch.ImageURL),
	}
}

func newClue(c *domain.Clue) *Clue {
	if c == nil {
		return nil
	}
	return &Clue{Text: c.Text, ImageURL: optional(c.ImageURL)}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

type scanRequest struct {
	Code string `json:"code"`
}

type scanResponse struct {
	Message      string    `json:"message"`
	CheckpointID string    `json:"checkpointId"`
	Content      *string   `json:"content"`
	Challenge    Challenge `json:"challenge"`
}

func (a *API) Scan(c *gin.Context) {
	var req scanRequest
	if !bind(c, &req) {
		return
	}

	resp, err := a.progression.AdmitScan(c.Request.Context(), progression.ScanRequest{
		TeamID: teamID(c),
		Code:   req.Code,
		Now:    a.now(),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, scanResponse{
		Message:      "checkpoint verified",
		CheckpointID: resp.Checkpoint.CheckpointID,
		Content:      optional(resp.Checkpoint.Content),
		Challenge:    newChallenge(resp.Challenge),
	})
}

type verifyRequest struct {
	CheckpointID string `json:"checkpointId"`
	ChallengeID  string `json:"challengeId"`
	Answer       string `json:"answer"`
	TimeTaken    int    `json:"timeTaken"`
}

// verifyResponse reports the team's new total as score and the points of this answer
// as pointsAwarded.
type verifyResponse struct {
	Message       string `json:"message"`
	PointsAwarded int64  `json:"pointsAwarded"`
	Score         int64  `json:"score"`
	NextStep      int    `json:"nextStep"`
	IsFinished    bool   `json:"isFinished"`
	NextClue      *Clue  `json:"nextClue"`
}

func (a *API) Verify(c *gin.Context) {
	var req verifyRequest
	if !bind(c, &req) {
		return
	}

	resp, err := a.progression.Verify(c.Request.Context(), progression.VerifyRequest{
		TeamID:       teamID(c),
		CheckpointID: req.CheckpointID,
		ChallengeID:  req.ChallengeID,
		Answer:       req.Answer,
		TimeTaken:    req.TimeTaken,
		Now:          a.now(),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, verifyResponse{
		Message:       "correct",
		PointsAwarded: resp.Score,
		Score:         resp.Team.Score,
		NextStep:      resp.NextStep,
		IsFinished:    resp.IsFinished,
		NextClue:      newClue(resp.NextClue),
	})
}

type quizResponse struct {
	Step      int         `json:"step"`
	Questions []Challenge `json:"questions"`
}

func (a *API) GetQuiz(c *gin.Context) {
	resp, err := a.quiz.GetQuiz(c.Request.Context(), quiz.GetQuizRequest{TeamID: teamID(c)})
	if err != nil {
		writeError(c, err)
		return
	}

	questions := make([]Challenge, 0, len(resp.Questions))
	for _, q := range resp.Questions {
		questions = append(questions, newChallenge(q))
	}

	c.JSON(http.StatusOK, quizResponse{Step: resp.Step, Questions: questions})
}

type submitQuizRequest struct {
	Answers []struct {
		QuestionID string `json:"questionId"`
		Answer     string `json:"answer"`
	} `json:"answers"`
	TimeTaken int `json:"timeTaken"`
}

type submitQuizResponse struct {
	Step         int   `json:"step"`
	ScoreEarned  int64 `json:"scoreEarned"`
	TotalScore   int64 `json:"totalScore"`
	CorrectCount int   `json:"correctCount"`
	TotalCount   int   `json:"totalCount"`
}

func (a *API) SubmitQuiz(c *gin.Context) {
	var req submitQuizRequest
	if !bind(c, &req) {
		return
	}

	answers := make([]quiz.Answer, 0, len(req.Answers))
	for _, ans := range req.Answers {
		answers = append(answers, quiz.Answer{ChallengeID: ans.QuestionID, Answer: ans.Answer})
	}

	resp, err := a.quiz.SubmitQuiz(c.Request.Context(), quiz.SubmitQuizRequest{
		TeamID:    teamID(c),
		Answers:   answers,
		TimeTaken: req.TimeTaken,
		Now:       a.now(),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, submitQuizResponse{
		Step:         resp.Attempt.Step,
		ScoreEarned:  resp.Attempt.ScoreEarned,
		TotalScore:   resp.TotalScore,
		CorrectCount: resp.Attempt.CorrectCount,
		TotalCount:   resp.Attempt.TotalCount,
	})
}
