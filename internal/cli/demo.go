package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cogkernel/tensorlogic/internal/atomspace"
	"github.com/cogkernel/tensorlogic/internal/engine"
	"github.com/cogkernel/tensorlogic/internal/truth"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run the syllogism walkthrough",
	Long:  "Builds a small knowledge base (humans are mortal), runs deduction, inference, and a few training steps, printing each result.",
	RunE:  runDemo,
}

func runDemo(cmd *cobra.Command, args []string) error {
	eng, err := engine.NewSeeded(64, 42)
	if err != nil {
		return err
	}
	sp := eng.Space()

	human, err := sp.CreateAtom(0, "human", truth.New(0.9, 0.8))
	if err != nil {
		return err
	}
	mortal, err := sp.CreateAtom(0, "mortal", truth.New(0.7, 0.6))
	if err != nil {
		return err
	}
	fmt.Printf("atoms:\n")
	fmt.Printf("  human  <%.2f, %.2f>\n", human.TV.Strength, human.TV.Confidence)
	fmt.Printf("  mortal <%.2f, %.2f>\n", mortal.TV.Strength, mortal.TV.Confidence)

	ded, err := truth.Deduction(human.TV, mortal.TV)
	if err != nil {
		return err
	}
	fmt.Printf("\ndeduction(human, mortal) = <%.4f, %.4f>\n", ded.Strength, ded.Confidence)
	fmt.Printf("similarity(human, human) = %.4f\n", sp.Similarity(human, human))
	fmt.Printf("similarity(human, mortal) = %.4f\n", sp.Similarity(human, mortal))

	rule, err := engine.NewRule("mortality", []*atomspace.Atom{human}, mortal)
	if err != nil {
		return err
	}
	if err := eng.AddRule(rule); err != nil {
		return err
	}

	chain := eng.Infer(human.Embedding, 5)
	fmt.Printf("\ninference chain (%d steps):\n", len(chain))
	for i, st := range chain {
		fmt.Printf("  %d. %s -> %s <%.4f, %.4f>\n",
			i+1, st.Rule.Name, st.Conclusion.Name, st.Conclusion.TV.Strength, st.Confidence)
	}

	fmt.Printf("\ntraining toward mortal = 1.0:\n")
	target := truth.New(1.0, 0.9)
	for i := 0; i < 3; i++ {
		if err := eng.TrainStep(human.Embedding, target); err != nil {
			return err
		}
		fmt.Printf("  step %d: loss %.6f, rule weight %.4f\n",
			i+1, eng.Gradients().Loss, rule.Weight)
	}

	fmt.Printf("\nfinal: mortal <%.4f, %.4f> after %d training steps\n",
		mortal.TV.Strength, mortal.TV.Confidence, sp.TrainingSteps)
	return nil
}
