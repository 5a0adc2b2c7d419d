package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisposition_Immediate(t *testing.T) {
	tests := []struct {
		kind     DispositionKind
		status   PatientStatus
		noteType string
	}{
		{DispositionDischarge, PatientDischarged, "Discharge Summary"},
		{DispositionAMA, PatientDischarged, "AMA Discharge Note"},
		{DispositionTransfer, PatientTransferred, "Transfer Note"},
		{DispositionDeceased, PatientDeceased, "Death Note"},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			s, _ := newTestSim(t)

			ok, err := s.Disposition("P1", tt.kind)

			require.NoError(t, err)
			require.True(t, ok)
			p, _ := s.Patient("P1")
			assert.Equal(t, tt.status, p.Status)
			assert.Equal(t, testStart, p.DischargedAt)
			notes := s.Notes("P1")
			require.Len(t, notes, 1)
			assert.Equal(t, tt.noteType, notes[0].Type)
			assert.Equal(t, NoteSigned, notes[0].Status)
			rec, ok := s.DispositionOf("P1")
			require.True(t, ok)
			assert.Equal(t, DispositionExecuted, rec.Outcome)
		})
	}
}

func TestDisposition_TransferNoteListsPendingResults(t *testing.T) {
	s, wall := newTestSim(t)
	o := mustPlace(t, s, "P1", "L3", PrioritySTAT)
	require.True(t, stepUntil(NewStepper(s, wall), 10*time.Minute, func() bool { return o.Resulted }))

	_, err := s.Disposition("P1", DispositionTransfer)
	require.NoError(t, err)

	p, _ := s.Patient("P1")
	assert.Equal(t, "Transfer Pending", p.Location)
	assert.Contains(t, s.Notes("P1")[0].Content, "Pending results at transfer: Blood Culture")
}

func TestDisposition_OnlyActivePatients(t *testing.T) {
	s, _ := newTestSim(t)
	_, err := s.Disposition("P1", DispositionDischarge)
	require.NoError(t, err)

	ok, err := s.Disposition("P1", DispositionAdmit)

	require.NoError(t, err)
	assert.False(t, ok)
	p, _ := s.Patient("P1")
	assert.Equal(t, PatientDischarged, p.Status)

	_, err = s.Disposition("P9", DispositionAdmit)
	assert.ErrorIs(t, err, ErrUnknownPatient)
	_, err = s.Disposition("P1", DispositionKind("Vanish"))
	assert.Error(t, err)
}

func TestDisposition_AdmitWithoutScriptIsImmediate(t *testing.T) {
	s, _ := newTestSim(t)

	ok, err := s.Disposition("P2", DispositionObservation)

	require.NoError(t, err)
	require.True(t, ok)
	p, _ := s.Patient("P2")
	assert.Equal(t, PatientObservation, p.Status)
	rec, _ := s.DispositionOf("P2")
	assert.Equal(t, DispositionAccepted, rec.Outcome)
	assert.Equal(t, "Admission Order", s.Notes("P2")[0].Type)
	assert.Contains(t, s.Notes("P2")[0].Content, "Status: Observation")
}

func TestDisposition_AdmissionCallbackRejectsThenAccepts(t *testing.T) {
	// GIVEN cardiology declines while no troponin is charted
	s, wall := newTestSim(t)
	ok, err := s.Disposition("P1", DispositionAdmit)
	require.NoError(t, err)
	require.True(t, ok)
	rec, _ := s.DispositionOf("P1")
	assert.Equal(t, DispositionPending, rec.Outcome)
	assert.Equal(t, "Cardiology", rec.Service)

	// WHEN a second request arrives while pending
	ok, _ = s.Disposition("P1", DispositionDischarge)
	assert.False(t, ok, "pending admission blocks other dispositions")

	// THEN the callback after the scripted delay rejects
	FastForward(s, wall, 2*time.Minute+time.Second)
	rec, _ = s.DispositionOf("P1")
	assert.Equal(t, DispositionRejected, rec.Outcome)
	assert.Equal(t, "No troponin yet.", rec.Message)
	p, _ := s.Patient("P1")
	assert.Equal(t, PatientActive, p.Status)

	// AND once a troponin results the same request is accepted
	o := mustPlace(t, s, "P1", "L1", PrioritySTAT)
	FastForward(s, wall, 7*time.Minute)
	require.True(t, o.Resulted)
	ok, _ = s.Disposition("P1", DispositionAdmit)
	require.True(t, ok)
	FastForward(s, wall, 2*time.Minute+time.Second)

	rec, _ = s.DispositionOf("P1")
	assert.Equal(t, DispositionAccepted, rec.Outcome)
	assert.Equal(t, "Cardiology accepting to CCU.", rec.Message)
	assert.Equal(t, PatientAdmitted, p.Status)
	assert.True(t, p.Status.InCare())
}

func TestDisposition_CallbackScaledBySpeed(t *testing.T) {
	s, wall := newTestSim(t)
	s.SetSpeed(4)
	_, err := s.Disposition("P1", DispositionAdmit)
	require.NoError(t, err)

	FastForward(s, wall, 29*time.Second)
	rec, _ := s.DispositionOf("P1")
	assert.Equal(t, DispositionPending, rec.Outcome)

	FastForward(s, wall, 2*time.Second)
	rec, _ = s.DispositionOf("P1")
	assert.Equal(t, DispositionRejected, rec.Outcome)
}
