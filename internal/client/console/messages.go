package console

import (
	"errors"

	"github.com/atinyakov/casebook/internal/client/notebook"
	"github.com/atinyakov/casebook/internal/models"
)

var authMessages = map[models.AuthErrorKind]string{
	models.AuthInvalidIdentifier:   "無効なメールアドレスです。",
	models.AuthDisabledAccount:     "このアカウントは無効化されています。",
	models.AuthNotFound:            "ユーザーが見つかりません。メールアドレスを確認してください。",
	models.AuthWrongSecret:         "パスワードが間違っています。",
	models.AuthIdentifierInUse:     "このメールアドレスは既に使用されています。",
	models.AuthWeakSecret:          "パスワードは6文字以上である必要があります。",
	models.AuthOperationNotAllowed: "メール・パスワードでのログインは許可されていません。",
}

// AuthMessage returns the user-facing text for a sign-in or registration
// failure.
func AuthMessage(err error) string {
	if msg, ok := authMessages[models.AuthKind(err)]; ok {
		return msg
	}
	return "ログインまたは登録中にエラーが発生しました。"
}

// Message returns the user-facing text for any error returned by the
// notebook controller.
func Message(err error) string {
	var authErr *models.AuthError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &authErr):
		return AuthMessage(err)
	case errors.Is(err, notebook.ErrNotSignedIn), errors.Is(err, models.ErrUnauthorized):
		return "ログインしてください。"
	case errors.Is(err, notebook.ErrNoActiveBoard):
		return "ボードが開かれていません。"
	case errors.Is(err, notebook.ErrUnknownBoard), errors.Is(err, models.ErrNotFound):
		return "ボードが見つかりません。"
	case errors.Is(err, notebook.ErrNotOwner):
		return "この操作はボードのオーナーのみ行えます。"
	case errors.Is(err, notebook.ErrNotMember), errors.Is(err, models.ErrForbidden):
		return "このボードのメンバーではありません。"
	case errors.Is(err, notebook.ErrDeclined):
		return "キャンセルしました。"
	case errors.Is(err, notebook.ErrNoNotes):
		return "分析するメモがありません。"
	case errors.Is(err, notebook.ErrAnalysisUnavailable), errors.Is(err, models.ErrAnalysisDisabled):
		return "AI分析は利用できません。"
	case errors.Is(err, models.ErrCommunication):
		return "AIとの通信に失敗しました。時間をおいて再度お試しください。"
	case errors.Is(err, models.ErrInvalidInput):
		return "入力内容を確認してください。"
	case errors.Is(err, notebook.ErrStale):
		return "セッションが変更されたため、結果を破棄しました。"
	}
	return "操作に失敗しました。"
}
