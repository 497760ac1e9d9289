// Package ranking содержит ранжирование когорты по скалярному баллу.
// Ранг плотный с пропусками: равные баллы делят ранг, а следующий
// отличный балл получает 1 + число строго лучших записей ([90,90,80] → [1,1,3]).
package ranking

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Rank - позиция студента в когорте. Начинается с 1.
type Rank int

// String возвращает строковое представление ранга.
func (r Rank) String() string {
	return fmt.Sprintf("#%d", r)
}

// Entry - одна запись ранжирования.
type Entry struct {
	// Rank - присваивается при Sort.
	Rank Rank

	StudentID   string
	DisplayName string
	Score       float64
}

// Clone создаёт копию записи.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	clone := *e
	return &clone
}

// ══════════════════════════════════════════════════════════════════════════════
// RANKING
// ══════════════════════════════════════════════════════════════════════════════

// Ranking - отсортированный список записей одной когорты.
type Ranking struct {
	entries []*Entry
	byID    map[string]*Entry
	sorted  bool
}

// New создаёт пустой Ranking.
func New() *Ranking {
	return &Ranking{
		entries: make([]*Entry, 0),
		byID:    make(map[string]*Entry),
	}
}

// FromScores строит и сортирует Ranking из пар (студент, балл).
func FromScores(scores map[string]float64) *Ranking {
	r := New()
	for id, score := range scores {
		_ = r.Add(&Entry{StudentID: id, Score: score})
	}
	r.Sort()
	return r
}

// Add добавляет запись (без автоматической сортировки).
func (r *Ranking) Add(entry *Entry) error {
	if entry == nil {
		return ErrNilEntry
	}
	if entry.StudentID == "" {
		return ErrInvalidStudentID
	}
	if _, exists := r.byID[entry.StudentID]; exists {
		return ErrDuplicateStudent
	}

	r.entries = append(r.entries, entry)
	r.byID[entry.StudentID] = entry
	r.sorted = false
	return nil
}

// Sort сортирует записи по убыванию балла и присваивает плотные ранги.
// Равные баллы получают один ранг независимо от порядка добавления.
func (r *Ranking) Sort() {
	sort.Slice(r.entries, func(i, j int) bool {
		si, sj := sortable(r.entries[i].Score), sortable(r.entries[j].Score)
		if si != sj {
			return si > sj
		}
		// При равном балле - по ID (детерминированный порядок)
		return r.entries[i].StudentID < r.entries[j].StudentID
	})

	currentRank := Rank(1)
	for i, entry := range r.entries {
		if i > 0 && sortable(entry.Score) == sortable(r.entries[i-1].Score) {
			entry.Rank = r.entries[i-1].Rank
		} else {
			entry.Rank = currentRank
		}
		currentRank = Rank(i + 2)
	}
	r.sorted = true
}

// sortable переводит NaN в -Inf, чтобы NaN не ломал упорядочивание.
func sortable(score float64) float64 {
	if math.IsNaN(score) {
		return math.Inf(-1)
	}
	return score
}

// RankOf возвращает ранг студента и размер когорты.
// Отсутствующий студент получает худший ранг (размер когорты).
func (r *Ranking) RankOf(studentID string) (Rank, int) {
	r.ensureSorted()
	size := len(r.entries)
	if entry, ok := r.byID[studentID]; ok {
		return entry.Rank, size
	}
	return Rank(size), size
}

// TopPercent возвращает долю когорты (в процентах) до студента включительно.
// ok=false, если студента нет в ранжировании.
func (r *Ranking) TopPercent(studentID string) (float64, bool) {
	r.ensureSorted()
	entry, ok := r.byID[studentID]
	if !ok || len(r.entries) == 0 {
		return 0, false
	}
	return float64(entry.Rank) / float64(len(r.entries)) * 100, true
}

// Slice возвращает копии записей [from:to).
func (r *Ranking) Slice(from, to int) []*Entry {
	r.ensureSorted()
	if from < 0 {
		from = 0
	}
	if to > len(r.entries) {
		to = len(r.entries)
	}
	if from >= to {
		return nil
	}
	result := make([]*Entry, 0, to-from)
	for _, e := range r.entries[from:to] {
		result = append(result, e.Clone())
	}
	return result
}

// Neighbors возвращает окно ±radius позиций вокруг студента, включая его
// самого. ok=false, если студента нет в ранжировании.
func (r *Ranking) Neighbors(studentID string, radius int) (*Page, bool) {
	r.ensureSorted()
	if _, ok := r.byID[studentID]; !ok {
		return nil, false
	}
	if radius < 0 {
		radius = 0
	}
	idx := 0
	for i, e := range r.entries {
		if e.StudentID == studentID {
			idx = i
			break
		}
	}
	from := max(idx-radius, 0)
	return r.Page(from, idx+radius+1-from), true
}

// Count возвращает число записей.
func (r *Ranking) Count() int {
	return len(r.entries)
}

// All возвращает копии всех записей в порядке ранга.
func (r *Ranking) All() []*Entry {
	return r.Slice(0, len(r.entries))
}

// AverageScore возвращает средний балл.
func (r *Ranking) AverageScore() float64 {
	if len(r.entries) == 0 {
		return 0
	}
	var total float64
	for _, e := range r.entries {
		total += e.Score
	}
	return total / float64(len(r.entries))
}

// MedianScore возвращает медианный балл.
func (r *Ranking) MedianScore() float64 {
	r.ensureSorted()
	n := len(r.entries)
	if n == 0 {
		return 0
	}
	mid := n / 2
	if n%2 == 0 {
		return (r.entries[mid-1].Score + r.entries[mid].Score) / 2
	}
	return r.entries[mid].Score
}

// Page - окно ранжирования. Mean и Median считаются по всей когорте,
// а не по окну.
type Page struct {
	Entries []*Entry
	Offset  int
	Total   int
	Mean    float64
	Median  float64
}

// Page возвращает записи [offset, offset+limit). limit ≤ 0 - пустое окно.
func (r *Ranking) Page(offset, limit int) *Page {
	if offset < 0 {
		offset = 0
	}
	p := &Page{
		Entries: []*Entry{},
		Offset:  offset,
		Total:   r.Count(),
		Mean:    r.AverageScore(),
		Median:  r.MedianScore(),
	}
	if limit > 0 {
		if e := r.Slice(offset, offset+limit); e != nil {
			p.Entries = e
		}
	}
	return p
}

func (r *Ranking) ensureSorted() {
	if !r.sorted {
		r.Sort()
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrInvalidStudentID - пустой ID студента.
	ErrInvalidStudentID = errors.New("invalid student id: cannot be empty")

	// ErrNilEntry - попытка добавить nil запись.
	ErrNilEntry = errors.New("cannot add nil entry")

	// ErrDuplicateStudent - студент уже есть в ранжировании.
	ErrDuplicateStudent = errors.New("student already exists in ranking")
)
