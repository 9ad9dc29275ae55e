package content

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/conorfennell/learning-accelerator/internal/domain"
)

// Files read from the static content directory. Lesson files are
// concatenated in this order.
var lessonFiles = []string{
	"lesson-content.json",
	"lessons-6-10.json",
	"lessons-11-15.json",
	"lessons-16-20.json",
}

const (
	ChallengesFile    = "manning-challenges.json"
	QuizQuestionsFile = "quiz-questions.json"
	CodeExercisesFile = "code-exercises.json"
	FlashcardsFile    = "flashcards.json"
)

// Library is the read-only lesson, challenge, quiz and exercise content.
// It is safe for concurrent use.
type Library struct {
	dir string

	mu         sync.RWMutex
	lessons    []Lesson
	challenges []Challenge
	quizzes    map[string]json.RawMessage
	exercises  map[string]json.RawMessage
}

// Load reads every content file under dir. Missing files are treated as
// empty; malformed files are an error.
func Load(dir string) (*Library, error) {
	l := &Library{dir: dir}
	if err := l.Reload(); err != nil {
		return nil, err
	}
	return l, nil
}

// Dir returns the content directory.
func (l *Library) Dir() string {
	return l.dir
}

// Reload re-reads the content directory. On error the previous content is kept.
func (l *Library) Reload() error {
	var lessons []Lesson
	for _, name := range lessonFiles {
		var part []Lesson
		if err := readJSON(filepath.Join(l.dir, name), &part); err != nil {
			return err
		}
		lessons = append(lessons, part...)
	}

	var challenges []Challenge
	if err := readJSON(filepath.Join(l.dir, ChallengesFile), &challenges); err != nil {
		return err
	}

	quizzes, err := readByLesson(filepath.Join(l.dir, QuizQuestionsFile))
	if err != nil {
		return err
	}
	exercises, err := readByLesson(filepath.Join(l.dir, CodeExercisesFile))
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.lessons = lessons
	l.challenges = challenges
	l.quizzes = quizzes
	l.exercises = exercises
	return nil
}

// Lessons returns every lesson in file order.
func (l *Library) Lessons() []Lesson {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Lesson(nil), l.lessons...)
}

// Lesson looks up a lesson by id.
func (l *Library) Lesson(id string) (Lesson, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, lesson := range l.lessons {
		if lesson.ID == id {
			return lesson, true
		}
	}
	return Lesson{}, false
}

// Challenges returns every challenge in file order.
func (l *Library) Challenges() []Challenge {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Challenge(nil), l.challenges...)
}

// Challenge looks up a challenge by id.
func (l *Library) Challenge(id string) (Challenge, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, c := range l.challenges {
		if c.ID == id {
			return c, true
		}
	}
	return Challenge{}, false
}

// Quiz returns the quiz document of a lesson.
func (l *Library) Quiz(lessonID string) (json.RawMessage, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	q, ok := l.quizzes[lessonID]
	return q, ok
}

// CodeExercises returns the code exercise document of a lesson.
func (l *Library) CodeExercises(lessonID string) (json.RawMessage, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.exercises[lessonID]
	return e, ok
}

// SeedCards reads flashcards.json. It returns nil, nil when the file is absent.
// Content fields and unmodelled fields are taken from the file; scheduling
// state is left to the caller.
func (l *Library) SeedCards() ([]domain.ReviewCard, error) {
	var doc struct {
		Cards []domain.ReviewCard `json:"cards"`
	}
	if err := readJSON(filepath.Join(l.dir, FlashcardsFile), &doc); err != nil {
		return nil, err
	}

	cards := make([]domain.ReviewCard, 0, len(doc.Cards))
	for _, c := range doc.Cards {
		if c.ID == "" {
			return nil, fmt.Errorf("%s: card without id", FlashcardsFile)
		}
		cards = append(cards, domain.ReviewCard{
			ID:      c.ID,
			Front:   c.Front,
			Back:    c.Back,
			Context: c.Context,
			Extra:   c.Extra,
		})
	}
	return cards, nil
}

// readJSON decodes path into v, leaving v untouched if the file does not exist.
func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// readByLesson indexes an array of documents by their "lessonId" field.
// The first document for a lesson wins.
func readByLesson(path string) (map[string]json.RawMessage, error) {
	var docs []json.RawMessage
	if err := readJSON(path, &docs); err != nil {
		return nil, err
	}

	byLesson := make(map[string]json.RawMessage, len(docs))
	for _, doc := range docs {
		var key struct {
			LessonID string `json:"lessonId"`
		}
		if err := json.Unmarshal(doc, &key); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		if _, seen := byLesson[key.LessonID]; !seen {
			byLesson[key.LessonID] = doc
		}
	}
	return byLesson, nil
}
