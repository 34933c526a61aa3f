package http

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerReq struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type subscribeReq struct {
	Email  string `json:"email"`
	Source string `json:"source"`
}
