package support

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"os"
	"strings"
	"time"

	"github.com/cucumber/godog"

	"github.com/MeKo-Tech/elscan/cmd/elscan/cmd"
	"github.com/MeKo-Tech/elscan/internal/classifier"
	"github.com/MeKo-Tech/elscan/internal/testutil"
	"github.com/MeKo-Tech/elscan/internal/utils"
)

// symbolRect is where scenario pages draw their fixture; captions go just below it.
var symbolRect = image.Rect(100, 100, 200, 160)

// aBlueprintWithFixture writes name (a 400x300 page with one fixture) and a
// name.words.json sidecar holding caption below it.
func (testCtx *TestContext) aBlueprintWithFixture(name, caption string) error {
	if err := utils.SavePNG(testCtx.Path(name), testutil.SingleSymbolPage(400, 300, symbolRect)); err != nil {
		return err
	}
	blocks := []map[string]any{{
		"text":       caption,
		"bbox":       []int{140, 170, 200, 185},
		"confidence": 0.9,
	}}
	data, err := json.Marshal(blocks)
	if err != nil {
		return err
	}
	return os.WriteFile(testCtx.Path(name+".words.json"), data, 0o600)
}

func (testCtx *TestContext) aBlankBlueprint(name string) error {
	return utils.SavePNG(testCtx.Path(name), testutil.Blueprint(testutil.BlueprintConfig{Width: 300, Height: 200}))
}

func (testCtx *TestContext) aFileWithContent(name, content string) error {
	return os.WriteFile(testCtx.Path(name), []byte(content), 0o600)
}

func (testCtx *TestContext) theConfigurationContains(doc *godog.DocString) error {
	return os.WriteFile(testCtx.ConfigFile, []byte(baseConfig+doc.Content), 0o600)
}

func (testCtx *TestContext) theEnvironmentVariableIsSet(name, value string) error {
	return testCtx.SetEnv(name, value)
}

// iRunElscan executes the command tree in-process. Arguments are split on
// whitespace after {tmp} substitution.
func (testCtx *TestContext) iRunElscan(args string) error {
	args = testCtx.substitute(args)
	testCtx.LastCommand = "elscan " + args

	root := cmd.NewRootCommand()
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(append([]string{
		"--env-file", testCtx.Path("none.env"),
		"--config", testCtx.ConfigFile,
	}, strings.Fields(args)...))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	testCtx.LastError = root.ExecuteContext(ctx)
	testCtx.LastOutput = stdout.String()
	testCtx.LastStderr = stderr.String()
	return nil
}

func (testCtx *TestContext) theCommandShouldSucceed() error {
	if testCtx.LastError != nil {
		return fmt.Errorf("%q failed: %w\nstderr: %s", testCtx.LastCommand, testCtx.LastError, testCtx.LastStderr)
	}
	return nil
}

func (testCtx *TestContext) theCommandShouldFailWith(text string) error {
	if testCtx.LastError == nil {
		return fmt.Errorf("%q succeeded when it should have failed\noutput: %s", testCtx.LastCommand, testCtx.LastOutput)
	}
	if !strings.Contains(testCtx.LastError.Error(), text) {
		return fmt.Errorf("error %q does not contain %q", testCtx.LastError, text)
	}
	return nil
}

func (testCtx *TestContext) theOutputShouldContain(text string) error {
	if !strings.Contains(testCtx.LastOutput, text) {
		return fmt.Errorf("output does not contain %q\nactual output: %s", text, testCtx.LastOutput)
	}
	return nil
}

func (testCtx *TestContext) theOutputShouldNotContain(text string) error {
	if strings.Contains(testCtx.LastOutput, text) {
		return fmt.Errorf("output unexpectedly contains %q", text)
	}
	return nil
}

func (testCtx *TestContext) lastResult() (classifier.Result, error) {
	var res classifier.Result
	if err := json.Unmarshal([]byte(testCtx.LastOutput), &res); err != nil {
		return res, fmt.Errorf("output is not a classification result: %w\noutput: %s", err, testCtx.LastOutput)
	}
	return res, nil
}

func (testCtx *TestContext) theResultShouldReportFixtures(n int) error {
	res, err := testCtx.lastResult()
	if err != nil {
		return err
	}
	if got := res.TotalCount(); got != n {
		return fmt.Errorf("expected %d fixtures, got %d", n, got)
	}
	return res.Check(len(res.DetailedDetections))
}

func (testCtx *TestContext) groupShouldHaveFixturesOfType(label string, n int, typ string) error {
	res, err := testCtx.lastResult()
	if err != nil {
		return err
	}
	g, ok := res.Summary[label]
	if !ok {
		return fmt.Errorf("no group %s in %v", label, res.Labels())
	}
	if g.Count != n {
		return fmt.Errorf("group %s has %d fixtures, expected %d", label, g.Count, n)
	}
	for _, d := range res.DetailedDetections {
		if string(d.Type) == typ {
			return nil
		}
	}
	return fmt.Errorf("no detection of type %s", typ)
}

func (testCtx *TestContext) theFileShouldExist(name string) error {
	info, err := os.Stat(testCtx.substitute(name))
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return errors.New(name + " is empty")
	}
	return nil
}

// RegisterCLISteps registers the command-line steps.
func (testCtx *TestContext) RegisterCLISteps(sc *godog.ScenarioContext) {
	sc.Step(`^a blueprint "([^"]*)" with a fixture labelled "([^"]*)"$`, testCtx.aBlueprintWithFixture)
	sc.Step(`^a blank blueprint "([^"]*)"$`, testCtx.aBlankBlueprint)
	sc.Step(`^a file "([^"]*)" containing "([^"]*)"$`, testCtx.aFileWithContent)
	sc.Step(`^the configuration contains:$`, testCtx.theConfigurationContains)
	sc.Step(`^the environment variable "([^"]*)" is "([^"]*)"$`, testCtx.theEnvironmentVariableIsSet)
	sc.Step(`^I run elscan "([^"]*)"$`, testCtx.iRunElscan)
	sc.Step(`^the command should succeed$`, testCtx.theCommandShouldSucceed)
	sc.Step(`^the command should fail with "([^"]*)"$`, testCtx.theCommandShouldFailWith)
	sc.Step(`^the output should contain "([^"]*)"$`, testCtx.theOutputShouldContain)
	sc.Step(`^the output should not contain "([^"]*)"$`, testCtx.theOutputShouldNotContain)
	sc.Step(`^the result should report (\d+) fixtures?$`, testCtx.theResultShouldReportFixtures)
	sc.Step(`^group "([^"]*)" should have (\d+) fixtures? of type "([^"]*)"$`, testCtx.groupShouldHaveFixturesOfType)
	sc.Step(`^the file "([^"]*)" should exist$`, testCtx.theFileShouldExist)
}
