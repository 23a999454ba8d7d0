package constraint

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Row is one linearized constraint row fed to the solver. The Jacobian is
// split per body into linear and angular parts; DLin/DAng point at the
// owning bodies' delta-velocity accumulators.
type Row struct {
	JLinA mgl64.Vec3
	JAngA mgl64.Vec3
	JLinB mgl64.Vec3
	JAngB mgl64.Vec3

	InvMassA float64
	InvMassB float64
	InvIA    mgl64.Mat3
	InvIB    mgl64.Mat3

	EffMass float64
	RHS     float64

	LowerLimit float64
	UpperLimit float64
	Impulse    float64

	DLinA *mgl64.Vec3
	DAngA *mgl64.Vec3
	DLinB *mgl64.Vec3
	DAngB *mgl64.Vec3
}

// Cache is the flat sequence of rows produced by constraint preparation,
// cleared at the start of every step. ConNumRows[i] records how many
// contiguous rows the i-th prepared constraint contributed.
type Cache struct {
	Rows       []Row
	ConNumRows []int
}

// Clear resets the cache for a new step.
func (c *Cache) Clear() {
	c.Rows = c.Rows[:0]
	c.ConNumRows = c.ConNumRows[:0]
}

// AddRow appends a row and returns it for filling in.
func (c *Cache) AddRow() *Row {
	c.Rows = append(c.Rows, Row{
		LowerLimit: math.Inf(-1),
		UpperLimit: math.Inf(1),
	})
	return &c.Rows[len(c.Rows)-1]
}

// CloseConstraint records that the rows appended since the previous close
// belong to one constraint.
func (c *Cache) CloseConstraint(numRows int) {
	c.ConNumRows = append(c.ConNumRows, numRows)
}

// TotalRows sums ConNumRows; it equals len(Rows) between preparation and
// the next clear.
func (c *Cache) TotalRows() int {
	total := 0
	for _, n := range c.ConNumRows {
		total += n
	}
	return total
}

// prepareRow computes the effective mass 1/(JᵀM⁻¹J) and seeds the
// accumulators with the warm-start impulse.
func prepareRow(row *Row, impulse float64) {
	k := row.InvMassA*row.JLinA.Dot(row.JLinA) +
		row.JAngA.Dot(row.InvIA.Mul3x1(row.JAngA)) +
		row.InvMassB*row.JLinB.Dot(row.JLinB) +
		row.JAngB.Dot(row.InvIB.Mul3x1(row.JAngB))

	if k > 0 {
		row.EffMass = 1.0 / k
	} else {
		row.EffMass = 0
	}

	row.Impulse = impulse
	warmStart(row)
}

// warmStart applies the previous step's accumulated impulse to the bodies'
// delta velocities.
func warmStart(row *Row) {
	if row.Impulse == 0 {
		return
	}
	applyImpulse(row, row.Impulse)
}

func applyImpulse(row *Row, impulse float64) {
	*row.DLinA = row.DLinA.Add(row.JLinA.Mul(row.InvMassA * impulse))
	*row.DAngA = row.DAngA.Add(row.InvIA.Mul3x1(row.JAngA.Mul(impulse)))
	*row.DLinB = row.DLinB.Add(row.JLinB.Mul(row.InvMassB * impulse))
	*row.DAngB = row.DAngB.Add(row.InvIB.Mul3x1(row.JAngB.Mul(impulse)))
}

// relativeDeltaVelocity is J·Δv over the accumulated deltas.
func relativeDeltaVelocity(row *Row) float64 {
	return row.JLinA.Dot(*row.DLinA) +
		row.JAngA.Dot(*row.DAngA) +
		row.JLinB.Dot(*row.DLinB) +
		row.JAngB.Dot(*row.DAngB)
}

// solveRow computes the clamped impulse increment and applies it to the
// delta-velocity accumulators.
func solveRow(row *Row) {
	delta := (row.RHS - relativeDeltaVelocity(row)) * row.EffMass
	old := row.Impulse
	row.Impulse = math.Max(row.LowerLimit, math.Min(row.UpperLimit, old+delta))
	delta = row.Impulse - old
	if delta != 0 {
		applyImpulse(row, delta)
	}
}
