package models

type Question struct {
	ID           string     `json:"id" bson:"questionId" yaml:"id"`
	Title        string     `json:"title" bson:"title" yaml:"title"`
	Description  string     `json:"description" bson:"description" yaml:"description"`
	Difficulty   Difficulty `json:"difficulty" bson:"difficulty" yaml:"difficulty"`
	Tags         []string   `json:"tags" bson:"tags" yaml:"tags"`
	SampleInput  string     `json:"sampleInput" bson:"sampleInput" yaml:"sampleInput"`
	SampleOutput string     `json:"sampleOutput" bson:"sampleOutput" yaml:"sampleOutput"`
}

type Difficulty string

const (
	Easy   Difficulty = "Easy"
	Medium Difficulty = "Medium"
	Hard   Difficulty = "Hard"
)

func (d Difficulty) Valid() bool {
	return d == Easy || d == Medium || d == Hard
}

// filters accepted by GET /api/questions
type QuestionFilter struct {
	Difficulty string
	Tag        string
	Search     string
	Limit      int64
	Offset     int64
}

// represents the response structure for /api/questions
type QuestionsResponse struct {
	Items []Question `json:"items"`
	Total int64      `json:"total"`
}
