// Package gradebook содержит доменную модель журнала оценок: студентов,
// предметы (matières), записи оценок DS/TP/Exam/Final и секции (когорты).
//
// Пакет определяет:
//
//   - Сущности: Student, Subject, Cohort
//   - Value Objects: Semester, SubjectKey, GradeRecord, Weights, Overlay
//   - Интерфейсы репозиториев: Repository, Writer
//
// # Архитектурные принципы
//
//  1. Нулевые внешние зависимости - только стандартная библиотека Go
//  2. Журнал доступен движку только на чтение
//  3. Гипотетические оценки ("что если") живут в Overlay и никогда не
//     записываются обратно в хранилище
//
// # Ключ предмета
//
// Один и тот же предмет может встречаться в обоих семестрах, поэтому оценки
// адресуются парой (ID предмета, семестр):
//
//	key := SubjectKey{SubjectID: "12", Semester: SemesterOne}
//	rec, ok := student.Grade(key)
//
// # Симуляция
//
//	overlay := NewOverlay()
//	overlay.Simulate(student.ID, subject, SimulatedInput{
//	    DS:   ParseGrade("12,5"),
//	    Exam: ParseGrade("14"),
//	})
package gradebook
