// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"math"
	"sort"

	"golang.org/x/crypto/blake2b"

	"github.com/mpi-hub/orientation-hub/internal/domain/gradebook"
	"github.com/mpi-hub/orientation-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// COHORT LOADING
// Все запросы работают на снимке секции, загруженном целиком.
// ══════════════════════════════════════════════════════════════════════════════

// CohortSnapshot - загруженная когорта и её отпечаток.
type CohortSnapshot struct {
	Cohort *gradebook.Cohort

	// Fingerprint меняется при любом изменении оценок или каталога.
	// Используется как часть ключа кеша.
	Fingerprint string
}

// CohortLoader загружает когорты из источника оценок.
type CohortLoader struct {
	repo gradebook.Repository
}

// NewCohortLoader создаёт загрузчик.
func NewCohortLoader(repo gradebook.Repository) *CohortLoader {
	return &CohortLoader{repo: repo}
}

// Load загружает секцию. Пустая секция - ErrSectionEmpty.
func (l *CohortLoader) Load(ctx context.Context, section string) (*CohortSnapshot, error) {
	cohort, err := gradebook.LoadCohort(ctx, l.repo, section)
	if err != nil {
		return nil, shared.WrapError("query", "LoadCohort", shared.ErrServiceUnavailable, "failed to load section", err)
	}
	if cohort.IsEmpty() {
		return nil, shared.ErrSectionEmpty
	}
	return &CohortSnapshot{Cohort: cohort, Fingerprint: Fingerprint(cohort)}, nil
}

// Fingerprint вычисляет BLAKE2b-отпечаток когорты: каталог и все оценки
// в детерминированном порядке. Возвращает 32 hex-символа.
func Fingerprint(c *gradebook.Cohort) string {
	h, _ := blake2b.New(16, nil)

	writeString(h, c.Section)

	subjects := c.Catalog.All()
	sort.Slice(subjects, func(i, j int) bool {
		return subjects[i].Key().String() < subjects[j].Key().String()
	})
	for _, s := range subjects {
		writeString(h, s.Key().String())
		writeString(h, s.Name)
		writeBool(h, s.HasTP)
		writeFloat(h, s.Weights.DS)
		writeFloat(h, s.Weights.TP)
		writeFloat(h, s.Weights.Exam)
		writeFloat(h, s.Coefficient)
	}

	for _, st := range c.Students() {
		writeString(h, st.ID)
		writeString(h, st.DisplayName())

		keys := make([]gradebook.SubjectKey, 0, len(st.Grades))
		for k := range st.Grades {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

		for _, k := range keys {
			rec := st.Grades[k]
			writeString(h, k.String())
			writeGrade(h, rec.DS)
			writeGrade(h, rec.TP)
			writeGrade(h, rec.Exam)
			writeGrade(h, rec.Final)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writeString(h hash.Hash, s string) {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(s)))
	h.Write(n[:])
	h.Write([]byte(s))
}

func writeFloat(h hash.Hash, v float64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], math.Float64bits(v))
	h.Write(b[:])
}

func writeBool(h hash.Hash, v bool) {
	if v {
		h.Write([]byte{1})
		return
	}
	h.Write([]byte{0})
}

// Отсутствующая оценка и 0 должны давать разные отпечатки.
func writeGrade(h hash.Hash, v *float64) {
	writeBool(h, v != nil)
	if v != nil {
		writeFloat(h, *v)
	}
}
